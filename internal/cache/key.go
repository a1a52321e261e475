package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const keySep = ":"

// segmentEscaper keeps the separator out of segments. Escaping "%" as well
// makes the mapping injective, so distinct inputs never share a key.
var segmentEscaper = strings.NewReplacer("%", "%25", keySep, "%3A")

// Key builds a deterministic cache key from an operation name, a user ID and
// further ordered parts. Equal inputs always yield equal keys, and segments
// containing ":" cannot collide with a different split of the same text.
func Key(operation, userID string, parts ...string) string {
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, segmentEscaper.Replace(operation), segmentEscaper.Replace(userID))
	for _, p := range parts {
		segments = append(segments, segmentEscaper.Replace(p))
	}
	return strings.Join(segments, keySep)
}

// SessionPrefix returns the prefix shared by every key Key(operation, userID, sessionID, ...)
// produces, for invalidating one session's entries.
func SessionPrefix(operation, userID, sessionID string) string {
	return Key(operation, userID, sessionID) + keySep
}

// UserPrefix returns the prefix shared by every key Key(operation, userID, ...)
// produces, across all of the user's sessions.
func UserPrefix(operation, userID string) string {
	return Key(operation, userID) + keySep
}

// Digest folds arbitrary values into a short stable key segment.
// Struct fields and map keys are encoded in a fixed order by encoding/json.
func Digest(values ...any) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(h, "%#v\n", v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
