package emailexport

import (
	"encoding/base64"
	"testing"

	"github.com/reefdata/reef/internal/sqlclient"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.csv":       "report.csv",
		"../../etc/passwd": "passwd",
		"bad name!@#.csv":  "bad_name___.csv",
		"":                 "attachment",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentTypeForFilename(t *testing.T) {
	if got := contentTypeForFilename("out.csv"); got != "text/csv" {
		t.Fatalf("got %q", got)
	}
	if got := contentTypeForFilename("out.unknownext"); got != "application/octet-stream" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildBinaryAttachmentsDecodesBase64AndRaw(t *testing.T) {
	cfg := AttachmentConfig{ContentColumn: "content", FilenameColumn: "name"}
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	rows := []sqlclient.Row{
		{"content": encoded, "name": "a.txt"},
		{"content": "plain text", "name": "b.txt"},
		{"content": nil, "name": "c.txt"},
	}

	attachments, err := buildBinaryAttachments(cfg, rows)
	if err != nil {
		t.Fatalf("buildBinaryAttachments: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("expected 2 attachments (nil content row skipped), got %d", len(attachments))
	}
	if string(attachments[0].Content) != "hello" {
		t.Fatalf("expected base64-decoded content, got %q", attachments[0].Content)
	}
	if string(attachments[1].Content) != "plain text" {
		t.Fatalf("expected raw string content, got %q", attachments[1].Content)
	}
}

func TestDedupeAttachmentsByFilenameAndHash(t *testing.T) {
	attachments := []Attachment{
		{Filename: "a.csv", Content: []byte("x")},
		{Filename: "a.csv", Content: []byte("y")},
		{Filename: "b.csv", Content: []byte("x")},
	}

	byName := dedupeAttachments(AttachmentConfig{Dedup: DedupByFilename}, attachments)
	if len(byName) != 2 {
		t.Fatalf("expected 2 after filename dedup, got %d", len(byName))
	}

	byHash := dedupeAttachments(AttachmentConfig{Dedup: DedupByHash}, attachments)
	if len(byHash) != 2 {
		t.Fatalf("expected 2 after hash dedup (a.csv/x and b.csv/x share a hash), got %d", len(byHash))
	}
}

func TestDedupeAttachmentsCapsAtMax(t *testing.T) {
	var attachments []Attachment
	for i := 0; i < 5; i++ {
		attachments = append(attachments, Attachment{Filename: string(rune('a' + i)), Content: []byte{byte(i)}})
	}
	out := dedupeAttachments(AttachmentConfig{MaxAttachmentsPerEmail: 2}, attachments)
	if len(out) != 2 {
		t.Fatalf("expected cap of 2 attachments, got %d", len(out))
	}
}

func TestTotalAttachmentBytes(t *testing.T) {
	attachments := []Attachment{{Content: []byte("abc")}, {Content: []byte("de")}}
	if got := totalAttachmentBytes(attachments); got != 5 {
		t.Fatalf("totalAttachmentBytes = %d, want 5", got)
	}
}
