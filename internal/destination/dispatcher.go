// Package destination implements Reef's destination dispatcher: a uniform
// save/test/compensate surface over every delivery endpoint kind, with
// exponential-backoff retry and saga-style compensation for the kinds that
// support it.
package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Kind mirrors catalog.DestinationKind without importing internal/catalog,
// keeping this package usable independently of the GORM schema.
type Kind string

const (
	KindLocal        Kind = "Local"
	KindFTP          Kind = "FTP"
	KindSFTP         Kind = "SFTP"
	KindS3           Kind = "S3"
	KindAzureBlob    Kind = "AzureBlob"
	KindHTTP         Kind = "HTTP"
	KindEmail        Kind = "Email"
	KindNetworkShare Kind = "NetworkShare"
	KindWebDav       Kind = "WebDav"
)

// ErrNotSupported is returned by Compensate for kinds that cannot undo a
// delivered artifact (HTTP, Email).
var ErrNotSupported = errors.New("destination: compensate not supported for this kind")

// NonTransient wraps an error to mark it as non-retryable: Dispatch will
// not retry and will surface it immediately.
type NonTransient struct{ err error }

func (n *NonTransient) Error() string { return n.err.Error() }
func (n *NonTransient) Unwrap() error { return n.err }

// nonTransient is a convenience constructor mirroring the shape seen across
// the retrieval pack's retry helpers.
func nonTransient(err error) error {
	if err == nil {
		return nil
	}
	return &NonTransient{err: err}
}

func isNonTransient(err error) bool {
	var nt *NonTransient
	return errors.As(err, &nt)
}

// SaveResult is the outcome of Dispatcher.Save.
type SaveResult struct {
	Success   bool
	FinalPath string
}

// TestResult is the outcome of Dispatcher.Test.
type TestResult struct {
	Success    bool
	FinalPath  string
	Bytes      int64
	ResponseMS int64
	Message    string
}

// Dispatcher is implemented once per destination kind.
type Dispatcher interface {
	// Save delivers the content of r (sized n bytes) to relativePath under
	// the destination described by config (already-decrypted JSON fields
	// unmarshalled by the caller into the kind-specific struct).
	Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error)

	// Test performs a lightweight connectivity probe: for object stores,
	// upload-then-delete a small object; for network destinations, a
	// round trip; returns the synthetic path used and elapsed time.
	Test(ctx context.Context, config map[string]interface{}) (TestResult, error)

	// Compensate best-effort removes a previously-saved artifact. Returns
	// ErrNotSupported for kinds that cannot undo a delivery.
	Compensate(ctx context.Context, config map[string]interface{}, path string) error
}

// Registry maps a destination kind to its Dispatcher implementation.
type Registry struct {
	dispatchers map[Kind]Dispatcher
	log         *zap.Logger
}

// NewRegistry builds the default registry wired with every supported kind.
func NewRegistry(log *zap.Logger) *Registry {
	r := &Registry{dispatchers: make(map[Kind]Dispatcher), log: log}
	r.Register(KindLocal, &LocalDispatcher{})
	r.Register(KindFTP, &FTPDispatcher{})
	r.Register(KindSFTP, &SFTPDispatcher{})
	r.Register(KindS3, &S3Dispatcher{})
	r.Register(KindAzureBlob, &AzureBlobDispatcher{})
	r.Register(KindHTTP, &HTTPDispatcher{})
	r.Register(KindNetworkShare, &NetworkShareDispatcher{})
	r.Register(KindWebDav, &WebDavDispatcher{})
	r.Register(KindEmail, &EmailDispatcher{})
	return r
}

// Register installs (or overrides) the dispatcher for a kind.
func (r *Registry) Register(kind Kind, d Dispatcher) {
	r.dispatchers[kind] = d
}

func (r *Registry) get(kind Kind) (Dispatcher, error) {
	d, ok := r.dispatchers[kind]
	if !ok {
		return nil, fmt.Errorf("destination: no dispatcher registered for kind %q", kind)
	}
	return d, nil
}

// Save retries transient failures up to maxRetries times with exponential
// backoff 2^attempt seconds (2, 4, 8, ...) maxRetries<=0
// defaults to 3.
func (r *Registry) Save(ctx context.Context, kind Kind, config map[string]interface{}, content func() (io.Reader, int64, error), relativePath string, maxRetries int) (SaveResult, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	d, err := r.get(kind)
	if err != nil {
		return SaveResult{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		reader, size, err := content()
		if err != nil {
			return SaveResult{}, fmt.Errorf("destination: failed to open content for %s: %w", relativePath, err)
		}

		result, err := d.Save(ctx, config, reader, relativePath, size)
		if closer, ok := reader.(io.Closer); ok {
			closer.Close()
		}
		if err == nil && result.Success {
			return result, nil
		}

		if err != nil && isNonTransient(err) {
			return SaveResult{}, err
		}
		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("destination: save reported failure without error for %s", relativePath)
		}

		if attempt <= maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if r.log != nil {
				r.log.Warn("destination save failed, retrying",
					zap.String("kind", string(kind)), zap.String("path", relativePath),
					zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return SaveResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return SaveResult{}, fmt.Errorf("destination: save failed after %d attempts: %w", maxRetries+1, lastErr)
}

// Test performs a single connectivity probe, no retry.
func (r *Registry) Test(ctx context.Context, kind Kind, config map[string]interface{}) (TestResult, error) {
	d, err := r.get(kind)
	if err != nil {
		return TestResult{}, err
	}
	start := time.Now()
	result, err := d.Test(ctx, config)
	result.ResponseMS = time.Since(start).Milliseconds()
	return result, err
}

// Compensate best-effort removes a previously delivered artifact.
func (r *Registry) Compensate(ctx context.Context, kind Kind, config map[string]interface{}, path string) error {
	d, err := r.get(kind)
	if err != nil {
		return err
	}
	return d.Compensate(ctx, config, path)
}

// isolationPrefix matches a leading all-digit per-process temp-dir segment,
// e.g. "12345/" (not "proc-9981/"), that profile pipeline output may be rooted
// under; RelativizePath strips it so splits land in destination
// sub-directories named after the business path, not the temp scratch path.
var isolationPrefix = regexp.MustCompile(`^[0-9]+[/\\]`)

// RelativizePath derives the path that should be used under a destination's
// base path from a possibly temp-rooted absolute/relative sourcePath,
// stripping a leading numeric process-isolation folder segment if present.
func RelativizePath(sourcePath string) string {
	clean := filepath.ToSlash(sourcePath)
	clean = isolationPrefix.ReplaceAllString(clean, "")
	return clean
}
