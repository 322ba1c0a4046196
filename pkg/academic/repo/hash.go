package repo

import (
	"crypto/sha1" // #nosec G505 -- content fingerprint, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentHash returns a stable digest of a record for dedup purposes.
// The record is serialized as canonical JSON before hashing; encoding/json
// emits map keys sorted, so field order in the source HTML never produces
// a spurious new row.
func ContentHash(record any) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("canonicalizing record: %w", err)
	}
	sum := sha1.Sum(payload) // #nosec G401
	return hex.EncodeToString(sum[:]), nil
}
