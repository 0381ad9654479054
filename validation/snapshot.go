package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/openlot-io/auctionengine/core"
	"github.com/openlot-io/auctionengine/engine"
)

// ValidateSnapshot checks a snapshot's hash and state invariants off-line,
// without a signed authorization. SignatureValid is reported true because no
// signature was requested; use ValidateSignedSnapshot for the full check.
func ValidateSnapshot(payload *engine.SnapshotPayload) *SnapshotValidationResult {
	result := &SnapshotValidationResult{SignatureValid: true}

	if payload == nil {
		result.ValidationDetails = append(result.ValidationDetails, "snapshot payload is nil")
		return result
	}

	if got := core.ComputeSnapshotHash(payload.Body); got == payload.Hash {
		result.HashValid = true
		result.ValidationDetails = append(result.ValidationDetails, "snapshot hash matches body")
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("snapshot hash mismatch: have %s, computed %s", payload.Hash, got))
		return result
	}

	if err := engine.VerifySnapshot(payload); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("state invariants violated: %v", err))
		return result
	}
	result.StateValid = true
	result.ValidationDetails = append(result.ValidationDetails, "state invariants hold")
	return result
}

// ValidateSignedSnapshot performs the full migration pre-flight: snapshot
// hash, state invariants, authorization signature, and the binding between
// the authorization and this exact snapshot.
func ValidateSignedSnapshot(payload *engine.SnapshotPayload, authorization AuthorizationCOSEBase64, key *ecdsa.PublicKey) *SnapshotValidationResult {
	result := ValidateSnapshot(payload)
	result.SignatureValid = false

	auth, err := VerifyMigrationAuthorization(authorization, key)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("authorization rejected: %v", err))
		return result
	}

	if payload != nil && auth.SnapshotHash != payload.Hash {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("authorization signed for snapshot %s, not %s", auth.SnapshotHash, payload.Hash))
		return result
	}

	result.SignatureValid = true
	result.ValidationDetails = append(result.ValidationDetails,
		fmt.Sprintf("authorization signed by %s at %s", auth.AuthorizedBy, auth.IssuedAt.UTC().Format("2006-01-02T15:04:05Z")))
	return result
}
