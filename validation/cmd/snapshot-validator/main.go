package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/openlot-io/auctionengine/engine"
	"github.com/openlot-io/auctionengine/validation"
)

func main() {
	var (
		snapshotPath      = flag.String("snapshot", "", "Path to CBOR snapshot payload file (required)")
		authorizationPath = flag.String("authorization", "", "Path to base64 COSE authorization file (optional)")
		publicKeyPath     = flag.String("public-key", "", "Path to governance public key PEM file (required with -authorization)")
		help              = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *snapshotPath == "" {
		showUsage()
		if *snapshotPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}
	if *authorizationPath != "" && *publicKeyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -authorization requires -public-key")
		os.Exit(1)
	}

	payload, err := readSnapshot(*snapshotPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
		os.Exit(2)
	}

	var result *validation.SnapshotValidationResult
	if *authorizationPath != "" {
		authorization, err := readAuthorization(*authorizationPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading authorization: %v\n", err)
			os.Exit(2)
		}
		publicKey, err := readPublicKey(*publicKeyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
			os.Exit(2)
		}
		result = validation.ValidateSignedSnapshot(payload, authorization, publicKey)
	} else {
		result = validation.ValidateSnapshot(payload)
	}

	fmt.Printf("Snapshot:  %s\n", *snapshotPath)
	fmt.Printf("Hash:      %s\n", payload.Hash)
	fmt.Printf("Version:   %d\n", payload.Version)
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	if result.IsValid() {
		fmt.Println("Result: VALID")
		os.Exit(0)
	}
	fmt.Println("Result: INVALID")
	os.Exit(3)
}

func showUsage() {
	fmt.Println("snapshot-validator verifies an engine migration snapshot before restore.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  snapshot-validator -snapshot snapshot.cbor [-authorization auth.b64 -public-key governance.pem]")
	fmt.Println()
	flag.PrintDefaults()
}

func readSnapshot(path string) (*engine.SnapshotPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload engine.SnapshotPayload
	if err := cbor.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return &payload, nil
}

func readAuthorization(path string) (validation.AuthorizationCOSEBase64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return validation.AuthorizationCOSEBase64(strings.TrimSpace(string(data))), nil
}

func readPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}
