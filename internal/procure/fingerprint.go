package procure

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deduplication key for an opportunity from the
// normalized (title, client, source URL) triple. It is a pure function:
// identical inputs always map to the same hex digest.
func Fingerprint(title, client, sourceURL string) string {
	raw := normalizeField(title) + "|" + normalizeField(client) + "|" + normalizeField(sourceURL)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeField(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
