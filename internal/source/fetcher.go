// Package source implements Reef's Source Fetchers: the
// ingestion-side mirror of internal/destination, polymorphic over the
// same transport kinds, used by the import pipeline to retrieve files to
// parse.
package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Kind identifies a source transport, reusing the same vocabulary as
// destination.Kind.
type Kind string

const (
	KindLocal        Kind = "Local"
	KindFTP          Kind = "FTP"
	KindSFTP         Kind = "SFTP"
	KindS3           Kind = "S3"
	KindAzureBlob    Kind = "AzureBlob"
	KindHTTP         Kind = "HTTP"
	KindNetworkShare Kind = "NetworkShare"
)

// Selection picks which matching source items a fetch returns.
type Selection string

const (
	SelectionOldest Selection = "Oldest"
	SelectionNewest Selection = "Newest"
	SelectionAll    Selection = "All"
)

// Item is one fetched payload.
type Item struct {
	Identifier  string
	ContentBytes []byte
	ModifiedAt  time.Time
}

// Fetcher is implemented once per source kind.
type Fetcher interface {
	// Fetch lists and retrieves items under config matching pattern,
	// filtered by selection.
	Fetch(ctx context.Context, config map[string]interface{}, pattern string, selection Selection) ([]Item, error)

	// Archive moves the item named identifier to the source's configured
	// archive location.
	Archive(ctx context.Context, config map[string]interface{}, identifier string) error
}

// Registry maps a source kind to its Fetcher implementation.
type Registry struct {
	fetchers map[Kind]Fetcher
	log      *zap.Logger
}

// NewRegistry builds the default registry wired with every supported kind.
func NewRegistry(log *zap.Logger) *Registry {
	r := &Registry{fetchers: make(map[Kind]Fetcher), log: log}
	r.Register(KindLocal, &LocalFetcher{})
	r.Register(KindFTP, &FTPFetcher{})
	r.Register(KindSFTP, &SFTPFetcher{})
	r.Register(KindS3, &S3Fetcher{})
	r.Register(KindAzureBlob, &AzureBlobFetcher{})
	r.Register(KindHTTP, &HTTPFetcher{})
	r.Register(KindNetworkShare, &NetworkShareFetcher{})
	return r
}

// Register installs (or overrides) the fetcher for a kind.
func (r *Registry) Register(kind Kind, f Fetcher) {
	r.fetchers[kind] = f
}

func (r *Registry) get(kind Kind) (Fetcher, error) {
	f, ok := r.fetchers[kind]
	if !ok {
		return nil, fmt.Errorf("source: no fetcher registered for kind %q", kind)
	}
	return f, nil
}

// OnSourceFailure decides what happens when fetch retries are exhausted.
type OnSourceFailure string

const (
	OnSourceFailureFail OnSourceFailure = "Fail"
	OnSourceFailureSkip OnSourceFailure = "Skip"
)

// Fetch makes up to retryCount attempts in all (default 3), retrying after
// any error with exponential backoff 2^attempt seconds. On final failure,
// Fail raises the last error and Skip returns an empty item list.
func (r *Registry) Fetch(ctx context.Context, kind Kind, config map[string]interface{}, pattern string, selection Selection, retryCount int, onFailure OnSourceFailure) ([]Item, error) {
	if retryCount <= 0 {
		retryCount = 3
	}
	f, err := r.get(kind)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= retryCount; attempt++ {
		items, err := f.Fetch(ctx, config, pattern, selection)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if r.log != nil {
			r.log.Warn("source fetch failed, retrying",
				zap.String("kind", string(kind)), zap.Int("attempt", attempt), zap.Error(err))
		}
		if attempt < retryCount {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if onFailure == OnSourceFailureSkip {
		if r.log != nil {
			r.log.Warn("source fetch exhausted retries, skipping per policy",
				zap.String("kind", string(kind)), zap.Error(lastErr))
		}
		return nil, nil
	}
	return nil, fmt.Errorf("source: fetch failed after %d attempts: %w", retryCount, lastErr)
}

// Archive delegates to the kind's Fetcher, best-effort: failures are
// returned for the caller to log, never fatal to the pipeline.
func (r *Registry) Archive(ctx context.Context, kind Kind, config map[string]interface{}, identifier string) error {
	f, err := r.get(kind)
	if err != nil {
		return err
	}
	return f.Archive(ctx, config, identifier)
}
