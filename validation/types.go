package validation

import (
	"encoding/base64"
	"fmt"
	"time"
)

// MigrationAuthorization is the statement governance signs to approve
// restoring a specific engine snapshot into a new logic version. The
// signature covers the snapshot hash, so an authorization can never be
// replayed against different state.
type MigrationAuthorization struct {
	SnapshotHash string    `cbor:"snapshot_hash" json:"snapshot_hash"`
	AuthorizedBy string    `cbor:"authorized_by" json:"authorized_by"`
	IssuedAt     time.Time `cbor:"issued_at" json:"issued_at"`
}

// AuthorizationCOSEBase64 is a base64-encoded COSE_Sign1 message carrying a
// MigrationAuthorization payload, suitable for JSON transport and files.
type AuthorizationCOSEBase64 string

// Decode returns the raw COSE_Sign1 bytes.
func (a AuthorizationCOSEBase64) Decode() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode authorization base64: %w", err)
	}
	return raw, nil
}

// SnapshotValidationResult contains detailed snapshot validation results.
// Call IsValid to check overall status.
type SnapshotValidationResult struct {
	HashValid         bool
	StateValid        bool
	SignatureValid    bool
	ValidationDetails []string
}

// IsValid returns true if all validation checks passed.
func (r *SnapshotValidationResult) IsValid() bool {
	return r.HashValid && r.StateValid && r.SignatureValid
}
