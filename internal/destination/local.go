package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalDispatcher writes to the local filesystem, either relative to the
// application base directory (use_relative_path) or to an absolute path.
type LocalDispatcher struct{}

type localConfig struct {
	basePath         string
	useRelativePath  bool
}

func parseLocalConfig(config map[string]interface{}) localConfig {
	c := localConfig{}
	if v, ok := config["base_path"].(string); ok {
		c.basePath = v
	}
	if v, ok := config["use_relative_path"].(bool); ok {
		c.useRelativePath = v
	}
	return c
}

func (l *LocalDispatcher) resolve(config map[string]interface{}, relativePath string) string {
	c := parseLocalConfig(config)
	if c.useRelativePath {
		wd, err := os.Getwd()
		if err == nil {
			return filepath.Join(wd, c.basePath, relativePath)
		}
	}
	return filepath.Join(c.basePath, relativePath)
}

func (l *LocalDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	dest := l.resolve(config, relativePath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return SaveResult{}, nonTransient(fmt.Errorf("destination: local: mkdir: %w", err))
	}

	f, err := os.Create(dest)
	if err != nil {
		return SaveResult{}, nonTransient(fmt.Errorf("destination: local: create: %w", err))
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return SaveResult{}, fmt.Errorf("destination: local: copy: %w", err)
	}

	return SaveResult{Success: true, FinalPath: dest}, nil
}

func (l *LocalDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	dest := l.resolve(config, "reef-test/connectivity-check")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return TestResult{}, fmt.Errorf("destination: local: test mkdir: %w", err)
	}
	content := []byte("reef connectivity check")
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return TestResult{}, fmt.Errorf("destination: local: test write: %w", err)
	}
	defer os.Remove(dest)
	return TestResult{Success: true, FinalPath: dest, Bytes: int64(len(content)), Message: "ok"}, nil
}

func (l *LocalDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("destination: local: compensate: %w", err)
	}
	return nil
}
