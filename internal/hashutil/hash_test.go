package hashutil

import "testing"

func TestHashStableUnderPermutation(t *testing.T) {
	a := map[string]string{"name": "alice", "age": "30", "city": "nyc"}
	b := map[string]string{"city": "nyc", "age": "30", "name": "alice"}

	if Hash(a) != Hash(b) {
		t.Fatalf("expected hash to be stable under key permutation")
	}
}

func TestHashChangesWithValue(t *testing.T) {
	a := Hash(map[string]string{"x": "1"})
	b := Hash(map[string]string{"x": "2"})
	if a == b {
		t.Fatalf("expected different values to produce different hashes")
	}
}

func TestHashIsHexSHA256Length(t *testing.T) {
	h := Hash(map[string]string{"a": "b"})
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %s", len(h), h)
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, "NULL"},
		{true, "TRUE"},
		{false, "FALSE"},
		{"hi", "hi"},
	}
	for _, c := range cases {
		if got := Stringify(c.in); got != c.want {
			t.Errorf("Stringify(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
