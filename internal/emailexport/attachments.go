package emailexport

import (
	"crypto/md5" //nolint:gosec // content fingerprinting for dedup, not security.
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reefdata/reef/internal/sqlclient"
)

// DefaultMaxAttachmentsPerEmail is the cap used when a profile leaves
// max_attachments_per_email unset; MaxTotalAttachmentBytes is a warning
// threshold, not a hard rejection.
const (
	DefaultMaxAttachmentsPerEmail = 10
	MaxTotalAttachmentBytes       = 25 * 1024 * 1024
)

// AttachmentMode selects how attachments are produced for an email.
type AttachmentMode string

const (
	AttachmentModeBinary           AttachmentMode = "Binary"
	AttachmentModeDocumentTemplate AttachmentMode = "DocumentTemplate"
)

// Dedup selects the attachment de-duplication rule.
type Dedup string

const (
	DedupByFilename Dedup = "ByFilename"
	DedupByHash     Dedup = "ByHash"
)

// AttachmentConfig is parsed from Profile.EmailAttachmentJSON.
type AttachmentConfig struct {
	Mode                   AttachmentMode `json:"mode"`
	ContentColumn          string         `json:"content_column"`
	FilenameColumn         string         `json:"filename_column"`
	DocumentTemplate       string         `json:"document_template"`
	DocumentFilename       string         `json:"document_filename"`
	Dedup                  Dedup          `json:"dedup"`
	MaxAttachmentsPerEmail int            `json:"max_attachments_per_email"`
}

// Attachment is one assembled file ready to attach to an outgoing message.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "_" || name == "." {
		name = "attachment"
	}
	return name
}

// curatedContentTypes maps a handful of common extensions to a MIME type;
// anything else falls back to application/octet-stream.
var curatedContentTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":  "application/zip",
	".html": "text/html",
}

func contentTypeForFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := curatedContentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// buildBinaryAttachments extracts one attachment per row from
// cfg.ContentColumn/FilenameColumn, supporting raw bytes or base64-encoded
// strings in the content column.
func buildBinaryAttachments(cfg AttachmentConfig, rows []sqlclient.Row) ([]Attachment, error) {
	var out []Attachment
	for i, row := range rows {
		raw, ok := row[cfg.ContentColumn]
		if !ok || raw == nil {
			continue
		}

		var content []byte
		switch v := raw.(type) {
		case []byte:
			content = v
		case string:
			if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
				content = decoded
			} else {
				content = []byte(v)
			}
		default:
			content = []byte(fmt.Sprintf("%v", v))
		}

		filename := fmt.Sprintf("attachment-%d", i)
		if cfg.FilenameColumn != "" {
			if v, ok := row[cfg.FilenameColumn]; ok && v != nil {
				filename = fmt.Sprintf("%v", v)
			}
		}
		filename = sanitizeFilename(filename)

		out = append(out, Attachment{Filename: filename, Content: content, ContentType: contentTypeForFilename(filename)})
	}
	return out, nil
}

// dedupeAttachments applies cfg.Dedup, keeping the first occurrence.
func dedupeAttachments(cfg AttachmentConfig, attachments []Attachment) []Attachment {
	seen := make(map[string]bool, len(attachments))
	out := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		var key string
		switch cfg.Dedup {
		case DedupByHash:
			sum := md5.Sum(a.Content) //nolint:gosec
			key = fmt.Sprintf("%x", sum)
		default:
			key = a.Filename
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}

	max := cfg.MaxAttachmentsPerEmail
	if max <= 0 {
		max = DefaultMaxAttachmentsPerEmail
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func totalAttachmentBytes(attachments []Attachment) int64 {
	var total int64
	for _, a := range attachments {
		total += int64(len(a.Content))
	}
	return total
}
