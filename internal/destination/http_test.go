package destination

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPDispatcherSavePostsBodyAndHeaders(t *testing.T) {
	var gotMethod, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := &HTTPDispatcher{}
	config := map[string]interface{}{
		"url":   srv.URL,
		"auth":  "Bearer",
		"token": "tok123",
	}

	result, err := h.Save(t.Context(), config, strings.NewReader("payload"), "out.csv", 7)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
	if gotBody != "payload" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestHTTPDispatcherSaveClientErrorIsNonTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	h := &HTTPDispatcher{}
	_, err := h.Save(t.Context(), map[string]interface{}{"url": srv.URL}, strings.NewReader("x"), "out.csv", 1)
	if err == nil {
		t.Fatalf("expected an error for a 400 response")
	}
	if !isNonTransient(err) {
		t.Fatalf("expected a 4xx response to be treated as non-transient")
	}
}

func TestHTTPDispatcherSaveServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := &HTTPDispatcher{}
	_, err := h.Save(t.Context(), map[string]interface{}{"url": srv.URL}, strings.NewReader("x"), "out.csv", 1)
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
	if isNonTransient(err) {
		t.Fatalf("expected a 5xx response to be retryable")
	}
}

func TestHTTPDispatcherCompensateUnsupported(t *testing.T) {
	h := &HTTPDispatcher{}
	if err := h.Compensate(t.Context(), nil, "x"); err != ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestHTTPDispatcherTestUsesHeadRequest(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := &HTTPDispatcher{}
	result, err := h.Test(t.Context(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if gotMethod != http.MethodHead {
		t.Fatalf("method = %q, want HEAD", gotMethod)
	}
}
