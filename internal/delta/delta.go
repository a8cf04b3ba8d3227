// Package delta implements Reef's Delta Sync Engine:
// content-hash-based change detection keyed by a user-chosen ReefID, with
// duplicate/null policies, delete tracking, and post-success commit
// semantics.
package delta

import (
	"crypto/md5" //nolint:gosec // MD5 is an opt-in, configured algorithm choice, not used for security.
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"math/rand"
	"sort"
	"strings"
)

// ErrDuplicateReefID is returned (Strict mode) when two input rows share a
// normalised ReefID.
var ErrDuplicateReefID = errors.New("delta: duplicate ReefID under Strict duplicate_strategy")

// ErrNullReefID is returned (Strict mode) when a row's ReefID is null/empty.
var ErrNullReefID = errors.New("delta: null ReefID under Strict null_strategy")

// Row is a single input row: a flat column-name -> value map plus its raw
// (pre-normalisation) ReefID value, which may be absent (nil).
type Row struct {
	Columns map[string]interface{}
	ReefID  interface{} // nil if column missing or SQL NULL
}

// newHasher returns a fresh hash.Hash for the configured algorithm.
func newHasher(algo HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case AlgoSHA256, "":
		return sha256.New(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	case AlgoMD5:
		return md5.New(), nil //nolint:gosec
	default:
		return nil, fmt.Errorf("delta: unknown hash algorithm %q", algo)
	}
}

// RowHash builds the canonical string
//
//	REEFID:<normalised reef_id>|<sorted-by-key pairs key=normalised_value;...>
//
// and returns its hex digest under the configured algorithm.
func RowHash(cfg Config, normalizedReefID string, columns map[string]interface{}) (string, error) {
	h, err := newHasher(cfg.HashAlgorithm)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(columns))
	for k := range columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("REEFID:")
	sb.WriteString(normalizedReefID)
	sb.WriteByte('|')
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(NormalizeValue(columns[k], cfg.NumericPrecision, cfg.RemoveNonPrintable))
		sb.WriteByte(';')
	}

	h.Write([]byte(sb.String()))
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// PreparedRow is an input row after ReefID resolution: normalisation,
// duplicate/null policy application, and hashing.
type PreparedRow struct {
	ReefID  string
	RowHash string
}

// PrepareRows applies pre-run validation: normalises each row's
// ReefID, applies the duplicate/null strategies, and computes each
// surviving row's hash. Order of `dropped` mirrors input order; the returned
// slice preserves first-seen order for each surviving ReefID.
func PrepareRows(cfg Config, rows []Row) (prepared []PreparedRow, dropped []string, err error) {
	seen := make(map[string]bool)

	for i, row := range rows {
		raw, isNull := rawReefID(row.ReefID)

		var reefID string
		if isNull {
			switch cfg.NullStrategy {
			case NullStrict:
				return nil, nil, fmt.Errorf("%w: row %d", ErrNullReefID, i)
			case NullSkip:
				dropped = append(dropped, fmt.Sprintf("row %d: null reef id", i))
				continue
			case NullGenerate:
				reefID = fmt.Sprintf("GENERATED_%d", rand.Int63())
			default:
				return nil, nil, fmt.Errorf("%w: row %d", ErrNullReefID, i)
			}
		} else {
			reefID = NormalizeReefID(raw, cfg.ReefIDNormalization)
		}

		if seen[reefID] {
			switch cfg.DuplicateStrategy {
			case DuplicateStrict:
				return nil, nil, fmt.Errorf("%w: reef id %q", ErrDuplicateReefID, reefID)
			case DuplicateSkip:
				dropped = append(dropped, fmt.Sprintf("row %d: duplicate reef id %q", i, reefID))
				continue
			default:
				return nil, nil, fmt.Errorf("%w: reef id %q", ErrDuplicateReefID, reefID)
			}
		}
		seen[reefID] = true

		rh, err := RowHash(cfg, reefID, row.Columns)
		if err != nil {
			return nil, nil, err
		}
		prepared = append(prepared, PreparedRow{ReefID: reefID, RowHash: rh})
	}

	return prepared, dropped, nil
}

func rawReefID(v interface{}) (s string, isNull bool) {
	if v == nil {
		return "", true
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), false
	}
	if str == "" {
		return "", true
	}
	return str, false
}

// Classification is the result of comparing current rows against previous
// delta state.
type Classification struct {
	NewRows       []string // reef_ids
	ChangedRows   []string
	UnchangedRows []string
	DeletedIDs    []string // previous keys \ current keys

	// CurrentHashes is the full current{reef_id -> hash} map, retained
	// in-memory until the caller commits it (post-delivery) via Commit.
	CurrentHashes map[string]string
}

// Classify compares `current` (from PrepareRows) against `previous` (loaded
// from delta state, reef_id -> row_hash for non-deleted entries).
func Classify(current []PreparedRow, previous map[string]string) Classification {
	c := Classification{CurrentHashes: make(map[string]string, len(current))}

	currentSet := make(map[string]bool, len(current))
	for _, row := range current {
		currentSet[row.ReefID] = true
		c.CurrentHashes[row.ReefID] = row.RowHash

		prevHash, existed := previous[row.ReefID]
		switch {
		case !existed:
			c.NewRows = append(c.NewRows, row.ReefID)
		case prevHash != row.RowHash:
			c.ChangedRows = append(c.ChangedRows, row.ReefID)
		default:
			c.UnchangedRows = append(c.UnchangedRows, row.ReefID)
		}
	}

	for reefID := range previous {
		if !currentSet[reefID] {
			c.DeletedIDs = append(c.DeletedIDs, reefID)
		}
	}

	return c
}
