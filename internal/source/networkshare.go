package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NetworkShareFetcher reads files matching a glob pattern from a mounted
// UNC/network share path, mirroring destination.NetworkShareDispatcher.
type NetworkShareFetcher struct{}

type networkShareSourceConfig struct {
	basePath    string
	subFolder   string
	archivePath string
}

func parseNetworkShareSourceConfig(config map[string]interface{}) networkShareSourceConfig {
	c := networkShareSourceConfig{}
	if v, ok := config["base_path"].(string); ok {
		c.basePath = v
	}
	if v, ok := config["sub_folder"].(string); ok {
		c.subFolder = v
	}
	if v, ok := config["archive_path"].(string); ok {
		c.archivePath = v
	}
	return c
}

func (n *NetworkShareFetcher) dir(c networkShareSourceConfig) string {
	if c.subFolder != "" {
		return filepath.Join(c.basePath, c.subFolder)
	}
	return c.basePath
}

func (n *NetworkShareFetcher) Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error) {
	c := parseNetworkShareSourceConfig(config)
	if pattern == "" {
		pattern = "*"
	}

	matches, err := filepath.Glob(filepath.Join(n.dir(c), pattern))
	if err != nil {
		return nil, fmt.Errorf("source: networkshare: glob: %w", err)
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
			return nil, fmt.Errorf("source: networkshare: read %s: %w", path, err)
		}
		items = append(items, Item{Identifier: path, ContentBytes: content})
	}
	return items, nil
}

func (n *NetworkShareFetcher) Archive(ctx context.Context, config map[string]interface{}, identifier string) error {
	c := parseNetworkShareSourceConfig(config)
	if c.archivePath == "" {
		return nil
	}
	if err := os.MkdirAll(c.archivePath, 0o755); err != nil {
		return fmt.Errorf("source: networkshare: archive mkdir: %w", err)
	}
	dest := filepath.Join(c.archivePath, filepath.Base(identifier))
	if err := os.Rename(identifier, dest); err != nil {
		return fmt.Errorf("source: networkshare: archive move: %w", err)
	}
	return nil
}
