// Package hashutil implements Reef's tamper-detection hash: a
// stable, order-independent hash over an entity's business fields, used to
// detect out-of-band edits to profiles, connections and destinations.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash canonicalises fields by ordering them lexicographically by key,
// serializes each value to its string form, concatenates "field=value;"
// pairs and hashes the result with SHA-256, returning lowercase hex. The
// result is independent of the iteration order of the input map — see
// TestHashStableUnderPermutation.
func Hash(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
		sb.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Stringify converts an arbitrary business-field value into the stable
// string form consumed by Hash. It is intentionally narrow: callers should
// pass already-canonical values (e.g. via internal/delta's normalisation) and
// rely on this only for the final concatenation step.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", val)
	}
}
