package destination

import (
	"context"
	"fmt"
	"io"
	"os"
)

// EmailDispatcher is the dispatcher-level shape of the Email destination
// kind. The actual composition and sending of messages is handled by the
// email export pipeline; here "save" stages the artifact to a temp file for
// the pipeline to pick up, and "test" does the same and reports the path.
type EmailDispatcher struct{}

func (e *EmailDispatcher) Save(ctx context.Context, config map[string]interface{}, r io.Reader, relativePath string, size int64) (SaveResult, error) {
	f, err := os.CreateTemp("", "reef-email-*")
	if err != nil {
		return SaveResult{}, fmt.Errorf("destination: email: stage temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return SaveResult{}, fmt.Errorf("destination: email: write temp file: %w", err)
	}

	return SaveResult{Success: true, FinalPath: f.Name()}, nil
}

func (e *EmailDispatcher) Test(ctx context.Context, config map[string]interface{}) (TestResult, error) {
	f, err := os.CreateTemp("", "reef-email-test-*")
	if err != nil {
		return TestResult{}, fmt.Errorf("destination: email: test stage: %w", err)
	}
	defer f.Close()

	content := []byte("reef connectivity check")
	if _, err := f.Write(content); err != nil {
		return TestResult{}, fmt.Errorf("destination: email: test write: %w", err)
	}

	return TestResult{Success: true, FinalPath: f.Name(), Bytes: int64(len(content)), Message: "ok"}, nil
}

func (e *EmailDispatcher) Compensate(ctx context.Context, config map[string]interface{}, path string) error {
	return ErrNotSupported
}
