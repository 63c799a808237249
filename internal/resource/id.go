package resource

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a prefix_hex16 id, per spec.md §4.6: the resource
// prefix, an underscore, and a 128-bit random suffix truncated to 16 hex
// characters. github.com/google/uuid is the entropy source; the UUID's
// own dashed/typed shape is discarded — only its randomness is used, so
// the wire id keeps the exact shape the mocked API uses.
func GenerateID(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(raw) > 16 {
		raw = raw[:16]
	}
	return prefix + "_" + raw
}
