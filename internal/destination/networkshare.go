package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// NetworkShareDispatcher delivers to a UNC or mounted network share path.
// Required: base_path. Optional: sub_folder, domain, username, password
// (credentials are parsed but not used or passed on anywhere; the share
// must already be mounted with the operator's chosen credentials),
// retry_count (default 3), retry_delay_seconds (default 5).
type NetworkShareDispatcher struct{}

type networkShareConfig struct {
	basePath          string
	subFolder         string
	domain            string
	username          string
	password          string
	retryCount        int
	retryDelaySeconds int
}

func parseNetworkShareConfig(config map[string]interface{}) networkShareConfig {
	c := networkShareConfig{retryCount: 3, retryDelaySeconds: 5}
	if v, ok := config["base_path"].(string); ok {
		c.basePath = v
	}
	if v, ok := config["sub_folder"].(string); ok {
		c.subFolder = v
	}
	if v, ok := config["domain"].(string); ok {
		c.domain = v
	}
	if v, ok := config["username"].(string); ok {
		c.username = v
	}
	if v, ok := config["password"].(string); ok {
		c.password = v
	}
	if v, ok := config["retry_count"].(float64); ok && v > 0 {
		c.retryCount = int(v)
	}
	if v, ok := config["retry_delay_seconds"].(float64); ok && v > 0 {
		c.retryDelaySeconds = int(v)
	}
	return c
}

func (n *NetworkShareDispatcher) resolve(c networkShareConfig, relativePath string) string {
	if c.subFolder != "" {
		return filepath.Join(c.basePath, c.subFolder, relativePath)
	}
	return filepath.Join(c.basePath, relativePath)
}

func (n *NetworkShareDispatcher) withRetry(ctx context.Context, c networkShareConfig, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < c.retryCount {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(c.retryDelaySeconds) * time.Second):
			}
		}
	}
	return lastErr
}

func (n *NetworkShareDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	c := parseNetworkShareConfig(config)
	dest := n.resolve(c, relativePath)

	err := n.withRetry(ctx, c, func() error {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(f, r)
		return err
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: networkshare: save: %w", err)
	}

	return SaveResult{Success: true, FinalPath: dest}, nil
}

func (n *NetworkShareDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	c := parseNetworkShareConfig(config)
	dest := n.resolve(c, "reef-test/connectivity-check")
	content := []byte("reef connectivity check")

	err := n.withRetry(ctx, c, func() error {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dest, content, 0o644)
	})
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: networkshare: test: %w", err)
	}
	defer os.Remove(dest)

	return TestResult{Success: true, FinalPath: dest, Bytes: int64(len(content)), Message: "ok"}, nil
}

func (n *NetworkShareDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("destination: networkshare: compensate: %w", err)
	}
	return nil
}
