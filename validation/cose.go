package validation

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// SignMigrationAuthorization wraps the authorization in a COSE_Sign1 message
// signed with the governance key (ES256). Signing lives next to verification
// so governance tooling and tests share one code path.
func SignMigrationAuthorization(auth MigrationAuthorization, key *ecdsa.PrivateKey) (AuthorizationCOSEBase64, error) {
	if auth.SnapshotHash == "" {
		return "", fmt.Errorf("authorization has empty snapshot hash")
	}
	payload, err := cbor.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("marshal authorization payload: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return "", fmt.Errorf("sign authorization: %w", err)
	}

	raw, err := msg.MarshalCBOR()
	if err != nil {
		return "", fmt.Errorf("marshal COSE message: %w", err)
	}
	return AuthorizationCOSEBase64(base64.StdEncoding.EncodeToString(raw)), nil
}

// VerifyMigrationAuthorization checks the COSE_Sign1 signature against the
// governance public key and returns the embedded authorization.
func VerifyMigrationAuthorization(coseB64 AuthorizationCOSEBase64, key *ecdsa.PublicKey) (*MigrationAuthorization, error) {
	raw, err := coseB64.Decode()
	if err != nil {
		return nil, err
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1 message: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("COSE signature verification failed: %w", err)
	}

	var auth MigrationAuthorization
	if err := cbor.Unmarshal(msg.Payload, &auth); err != nil {
		return nil, fmt.Errorf("decode authorization payload: %w", err)
	}
	if auth.SnapshotHash == "" {
		return nil, fmt.Errorf("authorization has empty snapshot hash")
	}
	return &auth, nil
}
