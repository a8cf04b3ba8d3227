package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LocalFetcher reads files matching a glob pattern from a local directory.
type LocalFetcher struct{}

type localSourceConfig struct {
	basePath    string
	archivePath string
}

func parseLocalSourceConfig(config map[string]interface{}) localSourceConfig {
	c := localSourceConfig{}
	if v, ok := config["base_path"].(string); ok {
		c.basePath = v
	}
	if v, ok := config["archive_path"].(string); ok {
		c.archivePath = v
	}
	return c
}

func selectItems(candidates []string, modTimes map[string]int64, selection Selection) []string {
	sort.Slice(candidates, func(i, j int) bool { return modTimes[candidates[i]] < modTimes[candidates[j]] })
	switch selection {
	case SelectionOldest:
		if len(candidates) > 0 {
			return candidates[:1]
		}
		return nil
	case SelectionNewest:
		if len(candidates) > 0 {
			return candidates[len(candidates)-1:]
		}
		return nil
	default:
		return candidates
	}
}

func (l *LocalFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseLocalSourceConfig(config)
	if pattern == "" {
		pattern = "*"
	}

	matches, err := filepath.Glob(filepath.Join(c.basePath, pattern))
	if err != nil {
		return nil, fmt.Errorf("source: local: glob: %w", err)
	}

	modTimes := make(map[string]int64, len(matches))
	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		modTimes[m] = info.ModTime().UnixNano()
		files = append(files, m)
	}

	chosen := selectItems(files, modTimes, selection)
	items := make([]Item, 0, len(chosen))
	for _, path := range chosen {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("source: local: read %s: %w", path, err)
		}
		items = append(items, Item{Identifier: path, ContentBytes: content})
	}
	return items, nil
}

func (l *LocalFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseLocalSourceConfig(config)
	if c.archivePath == "" {
		return nil
	}
	if err := os.MkdirAll(c.archivePath, 0o755); err != nil {
		return fmt.Errorf("source: local: archive mkdir: %w", err)
	}
	dest := filepath.Join(c.archivePath, filepath.Base(identifier))
	if err := os.Rename(identifier, dest); err != nil {
		return fmt.Errorf("source: local: archive move: %w", err)
	}
	return nil
}
