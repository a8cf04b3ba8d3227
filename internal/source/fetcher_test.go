package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type countingFetcher struct {
	failures int
	calls    int
}

func (f *countingFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return []Item{{Identifier: "ok"}}, nil
}
func (f *countingFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	return nil
}

func TestRegistryFetchRetriesThenSucceeds(t *testing.T) {
	r := NewRegistry(nil)
	f := &countingFetcher{failures: 1}
	r.Register(KindLocal, f)

	items, err := r.Fetch(t.Context(), KindLocal, nil, "*", SelectionAll, 2, OnSourceFailureFail)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if f.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.calls)
	}
}

type alwaysFailFetcher struct{ calls int }

func (f *alwaysFailFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	f.calls++
	return nil, errors.New("down")
}
func (f *alwaysFailFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	return nil
}

func TestRegistryFetchFailPolicyReturnsError(t *testing.T) {
	r := NewRegistry(nil)
	f := &alwaysFailFetcher{}
	r.Register(KindLocal, f)

	_, err := r.Fetch(t.Context(), KindLocal, nil, "*", SelectionAll, 1, OnSourceFailureFail)
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted under Fail policy")
	}
}

func TestRegistryFetchSkipPolicyReturnsEmpty(t *testing.T) {
	r := NewRegistry(nil)
	f := &alwaysFailFetcher{}
	r.Register(KindLocal, f)

	items, err := r.Fetch(t.Context(), KindLocal, nil, "*", SelectionAll, 1, OnSourceFailureSkip)
	if err != nil {
		t.Fatalf("expected Skip policy to suppress the error, got %v", err)
	}
	if items != nil {
		t.Fatalf("expected a nil item list under Skip policy, got %v", items)
	}
}

func TestRegistryFetchUnknownKind(t *testing.T) {
	r := NewRegistry(nil)
	r.fetchers = map[Kind]Fetcher{}
	_, err := r.Fetch(t.Context(), KindS3, nil, "*", SelectionAll, 1, OnSourceFailureFail)
	if err == nil {
		t.Fatalf("expected an error for an unregistered kind")
	}
}

type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

func TestReadAllAndCloseClosesReader(t *testing.T) {
	r := &closeTrackingReader{Reader: strings.NewReader("hello")}
	data, err := readAllAndClose(r)
	if err != nil {
		t.Fatalf("readAllAndClose: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if !r.closed {
		t.Fatalf("expected reader to be closed")
	}
}
