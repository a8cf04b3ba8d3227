package destination

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestRelativizePathStripsIsolationPrefix(t *testing.T) {
	cases := map[string]string{
		"12345/reports/q1.csv":     "reports/q1.csv",
		"proc-9981\\out\\file.csv": "proc-9981/out/file.csv",
		"reports/q1.csv":          "reports/q1.csv",
	}
	for in, want := range cases {
		if got := RelativizePath(in); got != want {
			t.Fatalf("RelativizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

type countingDispatcher struct {
	failures int
	calls    int
	lastErr  error
}

func (d *countingDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	d.calls++
	if d.calls <= d.failures {
		return SaveResult{}, errors.New("transient failure")
	}
	return SaveResult{Success: true, FinalPath: relativePath}, nil
}
func (d *countingDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	return TestResult{Success: true}, nil
}
func (d *countingDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	return nil
}

func TestRegistrySaveRetriesTransientFailures(t *testing.T) {
	r := NewRegistry(nil)
	d := &countingDispatcher{failures: 1}
	r.Register(KindLocal, d)

	content := func() (io.Reader, int64, error) {
		return bytes.NewReader([]byte("x")), 1, nil
	}

	result, err := r.Save(t.Context(), KindLocal, nil, content, "a.txt", 2)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after retry")
	}
	if d.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", d.calls)
	}
}

func TestRegistrySaveSurfacesNonTransientImmediately(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(KindLocal, &nonTransientDispatcher{})

	content := func() (io.Reader, int64, error) {
		return bytes.NewReader([]byte("x")), 1, nil
	}

	_, err := r.Save(t.Context(), KindLocal, nil, content, "a.txt", 3)
	if err == nil {
		t.Fatalf("expected a non-transient error to surface")
	}
}

type nonTransientDispatcher struct{ calls int }

func (d *nonTransientDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	d.calls++
	return SaveResult{}, nonTransient(errors.New("permanent"))
}
func (d *nonTransientDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	return TestResult{}, nil
}
func (d *nonTransientDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	return nil
}

func TestRegistryGetUnknownKind(t *testing.T) {
	r := NewRegistry(nil)
	r.dispatchers = map[Kind]Dispatcher{}
	_, err := r.get(KindS3)
	if err == nil {
		t.Fatalf("expected an error for an unregistered kind")
	}
}
