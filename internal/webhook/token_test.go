package webhook

import "testing"

func TestGenerateTokenLooksLikeToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !LooksLikeToken(token) {
		t.Fatalf("generated token %q does not look like a token", token)
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if a == b {
		t.Fatalf("expected two distinct tokens, got the same value twice")
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	token := "reef_wh_abc123"
	if HashToken(token) != HashToken(token) {
		t.Fatalf("expected HashToken to be deterministic for the same input")
	}
}

func TestMatches(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	hash := HashToken(token)

	if !Matches(token, hash) {
		t.Fatalf("expected Matches to accept the token that produced the hash")
	}
	if Matches("reef_wh_wrongtoken", hash) {
		t.Fatalf("expected Matches to reject a different token")
	}
}

func TestLooksLikeTokenRejectsShortOrUnprefixed(t *testing.T) {
	cases := []string{"", "reef_wh_tooshort", "not-a-token-at-all-but-long-enough-to-pass-length"}
	for _, c := range cases {
		if LooksLikeToken(c) {
			t.Fatalf("expected %q to not look like a token", c)
		}
	}
}
