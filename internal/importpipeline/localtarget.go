package importpipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reefdata/reef/internal/catalog"
)

// expandLocalPath substitutes {profile}, {timestamp}, {date}, {time},
// {guid} in an ImportProfile's target_local_path.
func expandLocalPath(tmpl string, profile *catalog.ImportProfile) string {
	now := time.Now().UTC()
	id, _ := uuid.NewV7()
	replacer := strings.NewReplacer(
		"{profile}", profile.Code,
		"{timestamp}", fmt.Sprintf("%d", now.Unix()),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
		"{guid}", id.String(),
	)
	return replacer.Replace(tmpl)
}

// writeLocalFile serialises rows (csv or json, per profile.TargetLocalFmt)
// to the expanded local path, honouring Overwrite/Append write mode.
func writeLocalFile(profile *catalog.ImportProfile, rows []mappedRow) (int64, error) {
	path := expandLocalPath(profile.TargetLocalPath, profile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("importpipeline: create target directory: %w", err)
	}

	content, err := serializeLocalRows(profile.TargetLocalFmt, rows)
	if err != nil {
		return 0, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if strings.EqualFold(profile.TargetWriteMode, "Append") {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("importpipeline: open target file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		return 0, fmt.Errorf("importpipeline: write target file: %w", err)
	}
	return int64(len(rows)), nil
}

func serializeLocalRows(format string, rows []mappedRow) ([]byte, error) {
	if strings.EqualFold(format, "json") {
		docs := make([]map[string]interface{}, len(rows))
		for i, r := range rows {
			docs[i] = r.values
		}
		b, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("importpipeline: marshal json target rows: %w", err)
		}
		return b, nil
	}

	columns := unionColumns(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = fmt.Sprintf("%v", r.values[c])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
