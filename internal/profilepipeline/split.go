package profilepipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/sqlclient"
)

// Artifact is one file produced by the split phase, ready for delivery.
type Artifact struct {
	SplitKey string
	Filename string
	Content  []byte
	RowCount int64
}

// splitPayload groups rows by split_key_column when splitting is enabled
// and writes one artifact per group using the filename template; otherwise
// it returns the single rendered payload as one artifact.
func splitPayload(profile *catalog.Profile, rows []sqlclient.Row, payload []byte) ([]Artifact, error) {
	if !profile.SplitEnabled {
		return []Artifact{{Filename: renderFilenameTemplate(profile.SplitFilenameTmpl, profile, "", profile.OutputFormat), Content: payload, RowCount: int64(len(rows))}}, nil
	}

	groups := make(map[string][]sqlclient.Row)
	var order []string
	for _, r := range rows {
		key := "unknown"
		if v, ok := r[profile.SplitKeyColumn]; ok && v != nil {
			key = fmt.Sprintf("%v", v)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var artifacts []Artifact
	for _, key := range order {
		groupRows := groups[key]
		batchSize := profile.SplitBatchSize
		if batchSize <= 0 {
			batchSize = len(groupRows)
		}
		for start := 0; start < len(groupRows); start += batchSize {
			end := start + batchSize
			if end > len(groupRows) {
				end = len(groupRows)
			}
			batch := groupRows[start:end]
			content, err := renderDefaultFormat(profile.OutputFormat, batch)
			if err != nil {
				return nil, fmt.Errorf("profilepipeline: render split %q: %w", key, err)
			}
			artifacts = append(artifacts, Artifact{
				SplitKey: key,
				Filename: renderFilenameTemplate(profile.SplitFilenameTmpl, profile, key, profile.OutputFormat),
				Content:  content,
				RowCount: int64(len(batch)),
			})
		}
	}
	return artifacts, nil
}

// renderFilenameTemplate substitutes {profile}, {splitkey}, {timestamp},
// {date}, {time}, {guid}, {format} in tmpl.
func renderFilenameTemplate(tmpl string, profile *catalog.Profile, splitKey, format string) string {
	now := time.Now().UTC()
	id, _ := uuid.NewV7()
	replacer := strings.NewReplacer(
		"{profile}", profile.Code,
		"{splitkey}", splitKey,
		"{timestamp}", fmt.Sprintf("%d", now.Unix()),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
		"{guid}", id.String(),
		"{format}", format,
	)
	return replacer.Replace(tmpl)
}
