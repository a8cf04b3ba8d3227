package emailexport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/sqlclient"
)

// Exporter drives the grouping, assembly, and sending of row-batches as
// email
type Exporter struct {
	renderer Renderer
	log      *zap.Logger
}

// NewExporter builds an Exporter with the default text/template renderer.
// log may be nil, in which case the exporter skips warning logs it would
// otherwise emit (e.g. the attachment-size threshold check).
func NewExporter(log *zap.Logger) *Exporter {
	if log != nil {
		log = log.Named("emailexport")
	}
	return &Exporter{renderer: TextTemplateRenderer{}, log: log}
}

// bodyOptions is the subset of Profile.TransformOptions this package reads.
type bodyOptions struct {
	TemplateBody string `json:"template_body"`
}

// Export groups rows per grouping rules, assembles and sends one
// email per group, and returns one Execution split per attempt.
func (e *Exporter) Export(ctx context.Context, sender Sender, destCfg DestinationConfig, profile *catalog.Profile, rows []sqlclient.Row) ([]catalog.ExecutionSplit, error) {
	attachCfg, err := parseAttachmentConfig(profile.EmailAttachmentJSON)
	if err != nil {
		return nil, err
	}
	bodyTmpl := bodyTemplate(profile.TransformOptions)

	groups := groupRows(profile, rows)

	var splits []catalog.ExecutionSplit
	var attempted, failures int
	for _, g := range groups {
		msg, err := e.assemble(profile, attachCfg, bodyTmpl, g.splitKey, g.rows)
		if err != nil {
			completedAt := time.Now()
			attempted++
			failures++
			splits = append(splits, catalog.ExecutionSplit{SplitKey: g.splitKey, Status: catalog.StatusFailed, RowCount: int64(len(g.rows)), CompletedAt: &completedAt, Error: err.Error()})
			continue
		}

		for _, perDoc := range expandPerDocument(attachCfg, g, *msg) {
			completedAt := time.Now()
			attempted++
			split := catalog.ExecutionSplit{SplitKey: perDoc.splitKey, RowCount: perDoc.rowCount, CompletedAt: &completedAt}
			if sendErr := sender.Send(ctx, destCfg, perDoc.msg); sendErr != nil {
				split.Status = catalog.StatusFailed
				split.Error = sendErr.Error()
				failures++
			} else {
				split.Status = catalog.StatusSuccess
			}
			splits = append(splits, split)
		}
	}

	if attempted > 0 {
		successPct := 100 * (attempted - failures) / attempted
		if successPct < profile.EmailSuccessThreshold {
			return splits, fmt.Errorf("emailexport: success rate %d%% below threshold %d%%", successPct, profile.EmailSuccessThreshold)
		}
	}
	return splits, nil
}

// RenderForApproval renders every prospective email without sending, for
// the approval-queue variant operation.
func (e *Exporter) RenderForApproval(profile *catalog.Profile, rows []sqlclient.Row) ([]Message, error) {
	attachCfg, err := parseAttachmentConfig(profile.EmailAttachmentJSON)
	if err != nil {
		return nil, err
	}
	bodyTmpl := bodyTemplate(profile.TransformOptions)

	groups := groupRows(profile, rows)
	msgs := make([]Message, 0, len(groups))
	for _, g := range groups {
		msg, err := e.assemble(profile, attachCfg, bodyTmpl, g.splitKey, g.rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

type rowGroup struct {
	splitKey string
	rows     []sqlclient.Row
}

type perDocumentMessage struct {
	splitKey string
	rowCount int64
	msg      Message
}

// expandPerDocument handles the case where the assembled body holds multiple
// top-level <!doctype html> documents and the group has more
// than one row, split into one email per (row, document) pair, unless a
// DocumentTemplate attachment already materialised a single full document.
func expandPerDocument(attachCfg AttachmentConfig, g rowGroup, msg Message) []perDocumentMessage {
	if attachCfg.Mode == AttachmentModeDocumentTemplate || len(g.rows) <= 1 {
		return []perDocumentMessage{{splitKey: g.splitKey, rowCount: int64(len(g.rows)), msg: msg}}
	}

	docs := splitHTMLDocuments(msg.HTMLBody)
	if len(docs) <= 1 {
		return []perDocumentMessage{{splitKey: g.splitKey, rowCount: int64(len(g.rows)), msg: msg}}
	}

	n := len(docs)
	if len(g.rows) < n {
		n = len(g.rows)
	}
	out := make([]perDocumentMessage, 0, n)
	for i := 0; i < n; i++ {
		perMsg := msg
		perMsg.HTMLBody = docs[i]
		out = append(out, perDocumentMessage{splitKey: fmt.Sprintf("%s-doc-%d", g.splitKey, i), rowCount: 1, msg: perMsg})
	}
	return out
}

// groupRows implements the recipient-grouping rules: split_key_column first,
// then shared-recipient merge, then one row per email.
func groupRows(profile *catalog.Profile, rows []sqlclient.Row) []rowGroup {
	if profile.SplitKeyColumn != "" {
		order := make([]string, 0)
		byKey := make(map[string][]sqlclient.Row)
		for _, r := range rows {
			key := "unknown"
			if v, ok := r[profile.SplitKeyColumn]; ok && v != nil {
				key = fmt.Sprintf("%v", v)
			}
			if _, seen := byKey[key]; !seen {
				order = append(order, key)
			}
			byKey[key] = append(byKey[key], r)
		}
		groups := make([]rowGroup, 0, len(order))
		for _, k := range order {
			groups = append(groups, rowGroup{splitKey: k, rows: byKey[k]})
		}
		return groups
	}

	if profile.EmailRecipientsHard != "" || sharedRecipient(profile, rows) {
		return []rowGroup{{splitKey: "", rows: rows}}
	}

	groups := make([]rowGroup, 0, len(rows))
	for i, r := range rows {
		groups = append(groups, rowGroup{splitKey: fmt.Sprintf("row-%d", i), rows: []sqlclient.Row{r}})
	}
	return groups
}

// sharedRecipient reports whether every row resolves to the same recipient
// column value, so they can be merged into a single email.
func sharedRecipient(profile *catalog.Profile, rows []sqlclient.Row) bool {
	if profile.EmailRecipientsColumn == "" || len(rows) == 0 {
		return false
	}
	first := fmt.Sprintf("%v", rows[0][profile.EmailRecipientsColumn])
	for _, r := range rows[1:] {
		if fmt.Sprintf("%v", r[profile.EmailRecipientsColumn]) != first {
			return false
		}
	}
	return true
}

func (e *Exporter) assemble(profile *catalog.Profile, attachCfg AttachmentConfig, bodyTmpl, splitKey string, rows []sqlclient.Row) (*Message, error) {
	toName, toAddress, err := resolveRecipient(profile, rows, profile.EmailRecipientsColumn, profile.EmailRecipientsHard)
	if err != nil {
		return nil, fmt.Errorf("emailexport: recipient: %w", err)
	}

	var ccAddress string
	if profile.EmailCC != "" {
		if _, addr, err := resolveMailbox(profile.EmailCC); err == nil {
			ccAddress = addr
		}
	}

	subject, err := resolveSubject(e.renderer, profile.EmailSubject, "", firstRow(rows), profile.ID.String(), profile.Name)
	if err != nil {
		return nil, fmt.Errorf("emailexport: subject: %w", err)
	}

	body, err := e.renderer.Render(bodyTmpl, map[string]interface{}{"Rows": rows})
	if err != nil {
		return nil, fmt.Errorf("emailexport: body: %w", err)
	}

	attachments, err := e.buildAttachments(attachCfg, rows, body)
	if err != nil {
		return nil, fmt.Errorf("emailexport: attachments: %w", err)
	}

	return &Message{
		SplitKey:    splitKey,
		ToName:      toName,
		ToAddress:   toAddress,
		CCAddress:   ccAddress,
		Subject:     subject,
		HTMLBody:    body,
		Attachments: attachments,
	}, nil
}

func (e *Exporter) buildAttachments(cfg AttachmentConfig, rows []sqlclient.Row, renderedBody string) ([]Attachment, error) {
	if cfg.Mode == "" {
		return nil, nil
	}

	var attachments []Attachment
	switch cfg.Mode {
	case AttachmentModeBinary:
		var err error
		attachments, err = buildBinaryAttachments(cfg, rows)
		if err != nil {
			return nil, err
		}
	case AttachmentModeDocumentTemplate:
		rendered, err := e.renderer.Render(cfg.DocumentTemplate, map[string]interface{}{"Rows": rows})
		if err != nil {
			return nil, err
		}
		name := cfg.DocumentFilename
		if name == "" {
			name = "document.html"
		}
		attachments = []Attachment{{Filename: sanitizeFilename(name), Content: []byte(rendered), ContentType: contentTypeForFilename(name)}}
	}

	attachments = dedupeAttachments(cfg, attachments)

	if total := totalAttachmentBytes(attachments); total > MaxTotalAttachmentBytes && e.log != nil {
		e.log.Warn("emailexport: attachment payload exceeds size threshold",
			zap.Int64("total_bytes", total), zap.Int64("max_bytes", MaxTotalAttachmentBytes))
	}

	return attachments, nil
}

func resolveRecipient(profile *catalog.Profile, rows []sqlclient.Row, column, hardcoded string) (name, address string, err error) {
	if hardcoded != "" {
		return resolveMailbox(hardcoded)
	}
	if column != "" && len(rows) > 0 {
		if v, ok := rows[0][column]; ok && v != nil {
			return resolveMailbox(fmt.Sprintf("%v", v))
		}
	}
	return "", "", fmt.Errorf("no recipient resolvable for profile %s", profile.Code)
}

func firstRow(rows []sqlclient.Row) sqlclient.Row {
	if len(rows) == 0 {
		return sqlclient.Row{}
	}
	return rows[0]
}

func bodyTemplate(transformOptionsJSON string) string {
	opts := parseBodyOptions(transformOptionsJSON)
	if opts.TemplateBody != "" {
		return opts.TemplateBody
	}
	return "{{range .Rows}}{{.}}\n{{end}}"
}

func parseBodyOptions(raw string) bodyOptions {
	var opts bodyOptions
	if raw == "" {
		return opts
	}
	_ = json.Unmarshal([]byte(raw), &opts)
	return opts
}

func parseAttachmentConfig(raw string) (AttachmentConfig, error) {
	var cfg AttachmentConfig
	if raw == "" || raw == "{}" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("parse attachment config: %w", err)
	}
	return cfg, nil
}

// splitHTMLDocuments handles the case where a rendered body contains multiple
// top-level <!doctype html> documents and the row-batch
// has multiple rows, the body is split into one document per row.
func splitHTMLDocuments(body string) []string {
	marker := "<!doctype html>"
	lower := strings.ToLower(body)
	var idxs []int
	for i := 0; ; {
		pos := strings.Index(lower[i:], marker)
		if pos < 0 {
			break
		}
		idxs = append(idxs, i+pos)
		i += pos + len(marker)
	}
	if len(idxs) <= 1 {
		return []string{body}
	}
	docs := make([]string, 0, len(idxs))
	for i, start := range idxs {
		end := len(body)
		if i+1 < len(idxs) {
			end = idxs[i+1]
		}
		docs = append(docs, body[start:end])
	}
	return docs
}
