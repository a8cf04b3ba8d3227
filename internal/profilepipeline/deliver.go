package profilepipeline

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/destination"
)

// deliverArtifacts saves every produced artifact via the destination
// dispatcher registry, returning one Execution split per artifact and the
// list of final paths actually written (for compensation on a later
// failure).
func (p *Pipeline) deliverArtifacts(ctx context.Context, dest *catalog.Destination, destConfig map[string]interface{}, artifacts []Artifact) ([]catalog.ExecutionSplit, []string, error) {
	kind := destinationKind(dest.Kind)
	var splits []catalog.ExecutionSplit
	var delivered []string
	var firstErr error

	for _, a := range artifacts {
		content := a.Content
		opener := func() (io.Reader, int64, error) {
			return bytes.NewReader(content), int64(len(content)), nil
		}

		result, err := p.destinations.Save(ctx, kind, destConfig, opener, destination.RelativizePath(a.Filename), 3)
		completedAt := time.Now()
		split := catalog.ExecutionSplit{SplitKey: a.SplitKey, RowCount: a.RowCount, CompletedAt: &completedAt}
		if err != nil {
			split.Status = catalog.StatusFailed
			split.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			split.Status = catalog.StatusSuccess
			delivered = append(delivered, result.FinalPath)
		}
		splits = append(splits, split)
	}

	return splits, delivered, firstErr
}

// compensate best-effort removes every artifact this execution delivered,
// used when a configured rollback-on-failure post-process step fails.
func (p *Pipeline) compensate(ctx context.Context, dest *catalog.Destination, destConfig map[string]interface{}, delivered []string) {
	kind := destinationKind(dest.Kind)
	for _, path := range delivered {
		if err := p.destinations.Compensate(ctx, kind, destConfig, path); err != nil && p.log != nil {
			p.log.Warn("profilepipeline: compensate failed", zap.Error(err))
		}
	}
}
