package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFileWithTime(t *testing.T, path, content string, at time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func TestLocalFetcherSelectionOldestNewestAll(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()
	writeFileWithTime(t, filepath.Join(dir, "a.csv"), "a", base)
	writeFileWithTime(t, filepath.Join(dir, "b.csv"), "b", base.Add(time.Hour))
	writeFileWithTime(t, filepath.Join(dir, "c.csv"), "c", base.Add(2*time.Hour))

	l := &LocalFetcher{}
	config := map[string]interface{}{"base_path": dir}

	oldest, err := l.Fetch(t.Context(), config, "*.csv", SelectionOldest)
	if err != nil {
		t.Fatalf("Fetch (oldest): %v", err)
	}
	if len(oldest) != 1 || string(oldest[0].ContentBytes) != "a" {
		t.Fatalf("expected oldest=a, got %+v", oldest)
	}

	newest, err := l.Fetch(t.Context(), config, "*.csv", SelectionNewest)
	if err != nil {
		t.Fatalf("Fetch (newest): %v", err)
	}
	if len(newest) != 1 || string(newest[0].ContentBytes) != "c" {
		t.Fatalf("expected newest=c, got %+v", newest)
	}

	all, err := l.Fetch(t.Context(), config, "*.csv", SelectionAll)
	if err != nil {
		t.Fatalf("Fetch (all): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
}

func TestLocalFetcherFetchNoMatches(t *testing.T) {
	dir := t.TempDir()
	l := &LocalFetcher{}
	items, err := l.Fetch(t.Context(), map[string]interface{}{"base_path": dir}, "*.csv", SelectionAll)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestLocalFetcherArchiveMovesFile(t *testing.T) {
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")
	src := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := &LocalFetcher{}
	config := map[string]interface{}{"base_path": dir, "archive_path": archiveDir}
	if err := l.Archive(t.Context(), config, src); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source file to be moved")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "in.csv")); err != nil {
		t.Fatalf("expected archived file to exist: %v", err)
	}
}

func TestLocalFetcherArchiveNoopWithoutArchivePath(t *testing.T) {
	l := &LocalFetcher{}
	if err := l.Archive(t.Context(), map[string]interface{}{}, "/does/not/matter"); err != nil {
		t.Fatalf("expected archive with no archive_path to be a no-op, got %v", err)
	}
}
