package delta

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// HashAlgorithm enumerates the row-hash digest functions the pipeline supports.
type HashAlgorithm string

const (
	AlgoSHA256 HashAlgorithm = "SHA-256"
	AlgoSHA512 HashAlgorithm = "SHA-512"
	AlgoMD5    HashAlgorithm = "MD5"
)

// DuplicateStrategy governs behaviour when two input rows share a normalised
// ReefID.
type DuplicateStrategy string

const (
	DuplicateStrict DuplicateStrategy = "Strict"
	DuplicateSkip   DuplicateStrategy = "Skip"
)

// NullStrategy governs behaviour when a row's ReefID is null.
type NullStrategy string

const (
	NullStrict   NullStrategy = "Strict"
	NullSkip     NullStrategy = "Skip"
	NullGenerate NullStrategy = "Generate"
)

// Config is a profile's delta-sync configuration.
type Config struct {
	Enabled              bool
	ReefIDColumn         string
	HashAlgorithm        HashAlgorithm
	DuplicateStrategy    DuplicateStrategy
	NullStrategy         NullStrategy
	NumericPrecision     int
	ReefIDNormalization  string // tokens: Trim, Lowercase, RemoveWhitespace
	RemoveNonPrintable   bool
	TrackDeletes         bool
	RetentionDays        int
	ResetOnSchemaChange  bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HashAlgorithm:    AlgoSHA256,
		NumericPrecision: 6,
	}
}

// NormalizeReefID applies the tokens present in cfg.ReefIDNormalization, in
// the fixed order Trim -> Lowercase -> RemoveWhitespace, independently of
// (and before) row canonicalisation.
func NormalizeReefID(raw string, tokens string) string {
	has := func(tok string) bool {
		for _, t := range strings.Split(tokens, ",") {
			if strings.EqualFold(strings.TrimSpace(t), tok) {
				return true
			}
		}
		return strings.Contains(tokens, tok)
	}

	out := raw
	if has("Trim") {
		out = strings.TrimSpace(out)
	}
	if has("Lowercase") {
		out = strings.ToLower(out)
	}
	if has("RemoveWhitespace") {
		out = stripWhitespace(out)
	}
	return out
}

func stripWhitespace(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NormalizeValue converts an arbitrary row value into its canonical string
// form's value-normalisation rules.
func NormalizeValue(v interface{}, precision int, removeNonPrintable bool) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float32:
		return formatFloat(float64(val), precision)
	case float64:
		return formatFloat(val, precision)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return normalizeString(val, removeNonPrintable)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	default:
		return normalizeString(fmt.Sprintf("%v", val), removeNonPrintable)
	}
}

func formatFloat(f float64, precision int) string {
	rounded := math.Round(f*math.Pow10(precision)) / math.Pow10(precision)
	return strconv.FormatFloat(rounded, 'f', precision, 64)
}

func normalizeString(s string, removeNonPrintable bool) string {
	// NFC normalisation, strip a leading BOM.
	out := norm.NFC.String(s)
	out = strings.TrimPrefix(out, "﻿")
	if removeNonPrintable {
		out = stripCCategory(out)
	}
	return out
}

// stripCCategory removes Unicode "C" (control/format/surrogate/private-use/
// unassigned) category code points.
func stripCCategory(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.C, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
