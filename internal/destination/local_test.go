package destination

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalDispatcherSaveAndCompensate(t *testing.T) {
	dir := t.TempDir()
	l := &LocalDispatcher{}
	config := map[string]interface{}{"base_path": dir}

	content := "hello reef"
	result, err := l.Save(t.Context(), config, strings.NewReader(content), "reports/out.csv", int64(len(content)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}

	got, err := os.ReadFile(result.FinalPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != content {
		t.Fatalf("file content = %q, want %q", got, content)
	}

	if err := l.Compensate(t.Context(), config, result.FinalPath); err != nil {
		t.Fatalf("Compensate: %v", err)
	}
	if _, err := os.Stat(result.FinalPath); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed after Compensate")
	}
}

func TestLocalDispatcherCompensateMissingFileIsNotAnError(t *testing.T) {
	l := &LocalDispatcher{}
	dir := t.TempDir()
	if err := l.Compensate(t.Context(), nil, filepath.Join(dir, "missing.txt")); err != nil {
		t.Fatalf("expected compensating a missing file to be a no-op, got %v", err)
	}
}

func TestLocalDispatcherTest(t *testing.T) {
	dir := t.TempDir()
	l := &LocalDispatcher{}
	result, err := l.Test(t.Context(), map[string]interface{}{"base_path": dir})
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if !result.Success || result.Bytes == 0 {
		t.Fatalf("expected a successful non-empty connectivity check, got %+v", result)
	}
	if _, err := os.Stat(result.FinalPath); !os.IsNotExist(err) {
		t.Fatalf("expected Test to clean up its probe file")
	}
}
