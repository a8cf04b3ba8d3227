package importpipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reefdata/reef/internal/catalog"
)

// MappingConfig is an ImportProfile's parsed column-mapping behaviour.
type MappingConfig struct {
	Mappings       []catalog.ColumnMapping
	SkipUnmapped   bool
	AutoMapColumns bool

	// TargetColumns is the target table's column set, from the schema
	// probe phase, consulted by auto_map_columns' case-insensitive match.
	// Empty for a local-file target or when the probe came back empty.
	TargetColumns []string
}

func parseMappingConfig(profile *catalog.ImportProfile) (MappingConfig, error) {
	var mappings []catalog.ColumnMapping
	raw := profile.ColumnMappingsJSON
	if raw == "" {
		raw = "[]"
	}
	if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
		return MappingConfig{}, fmt.Errorf("importpipeline: parse column_mappings: %w", err)
	}

	var opts struct {
		SkipUnmapped   bool `json:"skip_unmapped"`
		AutoMapColumns bool `json:"auto_map_columns"`
	}
	fc := profile.FormatConfigJSON
	if fc != "" && fc != "{}" {
		_ = json.Unmarshal([]byte(fc), &opts)
	}

	return MappingConfig{Mappings: mappings, SkipUnmapped: opts.SkipUnmapped, AutoMapColumns: opts.AutoMapColumns}, nil
}

// mappedRow is one record after column mapping and datatype casting, keyed
// by target column name.
type mappedRow struct {
	values map[string]interface{}
}

// applyMapping translates a parsed source row into target columns: explicit
// mappings are cast by their declared datatype; any source column left
// unmapped is either dropped or passed through unchanged depending on
// cfg.SkipUnmapped/AutoMapColumns.
func applyMapping(cfg MappingConfig, source map[string]interface{}) (mappedRow, error) {
	out := make(map[string]interface{}, len(cfg.Mappings))
	mapped := make(map[string]bool, len(cfg.Mappings))

	for _, m := range cfg.Mappings {
		raw, present := source[m.Source]
		mapped[m.Source] = true
		if !present || raw == nil {
			if m.Default != "" {
				cast, err := castValue(m.Default, m.DataType)
				if err != nil {
					return mappedRow{}, fmt.Errorf("importpipeline: default for %q: %w", m.Target, err)
				}
				out[m.Target] = cast
				continue
			}
			if m.SkipOnNull {
				continue
			}
			out[m.Target] = nil
			continue
		}
		cast, err := castValue(raw, m.DataType)
		if err != nil {
			return mappedRow{}, fmt.Errorf("importpipeline: cast column %q: %w", m.Source, err)
		}
		out[m.Target] = cast
	}

	if cfg.AutoMapColumns && !cfg.SkipUnmapped {
		for k, v := range source {
			if mapped[k] {
				continue
			}
			target := matchTargetColumn(k, cfg.TargetColumns)
			out[target] = v
		}
	}

	return mappedRow{values: out}, nil
}

// matchTargetColumn resolves an unmapped source column name against the
// target schema case-insensitively; if nothing matches (or no schema was
// probed) the source name is used as-is.
func matchTargetColumn(sourceCol string, targetColumns []string) string {
	for _, tc := range targetColumns {
		if strings.EqualFold(tc, sourceCol) {
			return tc
		}
	}
	return sourceCol
}

// castValue converts a raw parsed value (string from CSV/fixed-width, or a
// native JSON/XML type) to the declared target datatype. Failed numeric or
// datetime parses yield nil rather than an error, per policy.
func castValue(raw interface{}, datatype string) (interface{}, error) {
	s := toCastString(raw)
	switch strings.ToLower(datatype) {
	case "int", "integer":
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, nil
		}
		return n, nil
	case "decimal", "float", "double", "number":
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, nil
		}
		return f, nil
	case "bool", "boolean":
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, nil
		}
		return b, nil
	case "datetime", "date":
		t, ok := parseDateTime(s)
		if !ok {
			return nil, nil
		}
		return t, nil
	case "", "string", "varchar", "text":
		return s, nil
	default:
		return s, nil
	}
}

func toCastString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04:05",
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
