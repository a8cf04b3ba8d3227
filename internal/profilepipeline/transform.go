package profilepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/sqlclient"
)

// runProcessScript executes a pre/post-process SQL or stored-procedure
// script on conn's connection with its own command timeout.
func runProcessScript(ctx context.Context, client sqlclient.Client, processJSON string) error {
	var spec struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal([]byte(processJSON), &spec); err != nil {
		return fmt.Errorf("profilepipeline: parse process script: %w", err)
	}
	if spec.SQL == "" {
		return nil
	}
	_, err := client.Exec(ctx, spec.SQL)
	return err
}

// transformRows renders the profile's configured output format. A native
// template kind (ForXml/ForJson) re-wraps the query so the source database
// emits the payload directly; any other template kind renders off-database
// against the already-fetched rows.
func transformRows(ctx context.Context, client sqlclient.Client, dialect sqlclient.Dialect, profile *catalog.Profile, rows []sqlclient.Row) ([]byte, error) {
	switch profile.TemplateKind {
	case "ForXml", "ForJson":
		return transformNative(ctx, client, dialect, profile)
	case "Scriban", "Xslt", "Document":
		return renderTemplate(profile, rows)
	default:
		return renderDefaultFormat(profile.OutputFormat, rows)
	}
}

// transformNative wraps the profile query so the source engine's native
// FOR XML / FOR JSON clause produces the serialised payload, with
// parameters coming from the profile's transform-options JSON.
func transformNative(ctx context.Context, client sqlclient.Client, dialect sqlclient.Dialect, profile *catalog.Profile) ([]byte, error) {
	var opts struct {
		Wrapper string `json:"wrapper"` // e.g. "AUTO", "RAW", "PATH"
		Root    string `json:"root"`
	}
	if profile.TransformOptions != "" {
		_ = json.Unmarshal([]byte(profile.TransformOptions), &opts)
	}

	var wrapped string
	switch profile.TemplateKind {
	case "ForXml":
		wrapper := opts.Wrapper
		if wrapper == "" {
			wrapper = "AUTO"
		}
		wrapped = fmt.Sprintf("SELECT * FROM (%s) reef_native FOR XML %s", profile.Query, wrapper)
		if opts.Root != "" {
			wrapped += fmt.Sprintf(", ROOT('%s')", opts.Root)
		}
	case "ForJson":
		wrapper := opts.Wrapper
		if wrapper == "" {
			wrapper = "AUTO"
		}
		wrapped = fmt.Sprintf("SELECT * FROM (%s) reef_native FOR JSON %s", profile.Query, wrapper)
	}

	rows, err := sqlclient.QueryWithRetry(ctx, client, dialect, 1, wrapped)
	if err != nil {
		return nil, fmt.Errorf("profilepipeline: native transform query: %w", err)
	}

	var sb strings.Builder
	for _, r := range rows {
		for _, v := range r {
			sb.WriteString(fmt.Sprintf("%v", v))
		}
	}
	return []byte(sb.String()), nil
}

// renderTemplate parses the profile's template as a Go text/template,
// taking the row-batch as the model. This is the off-database render path
// for Scriban/XSLT/Document template kinds; the body is always Go template
// syntax, so Scriban-only constructs and XSLT stylesheets are not
// interpreted.
func renderTemplate(profile *catalog.Profile, rows []sqlclient.Row) ([]byte, error) {
	var opts struct {
		TemplateBody string `json:"template_body"`
	}
	if profile.TransformOptions != "" {
		_ = json.Unmarshal([]byte(profile.TransformOptions), &opts)
	}
	if opts.TemplateBody == "" {
		return renderDefaultFormat(profile.OutputFormat, rows)
	}

	tmpl, err := template.New(profile.Code).Parse(opts.TemplateBody)
	if err != nil {
		return nil, fmt.Errorf("profilepipeline: parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, map[string]interface{}{"Rows": rows}); err != nil {
		return nil, fmt.Errorf("profilepipeline: render template: %w", err)
	}
	return []byte(buf.String()), nil
}

// renderDefaultFormat covers the common non-templated output formats.
func renderDefaultFormat(format string, rows []sqlclient.Row) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return json.Marshal(rows)
	default:
		return renderCSV(rows)
	}
}

func renderCSV(rows []sqlclient.Row) ([]byte, error) {
	if len(rows) == 0 {
		return []byte{}, nil
	}

	columns := orderedColumns(rows[0])
	var sb strings.Builder
	sb.WriteString(strings.Join(columns, ","))
	sb.WriteString("\r\n")
	for _, r := range rows {
		values := make([]string, len(columns))
		for i, c := range columns {
			values[i] = csvEscape(fmt.Sprintf("%v", r[c]))
		}
		sb.WriteString(strings.Join(values, ","))
		sb.WriteString("\r\n")
	}
	return []byte(sb.String()), nil
}

func orderedColumns(row sqlclient.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
