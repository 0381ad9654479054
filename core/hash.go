package core

import (
	"crypto/sha256"
	"fmt"
)

// snapshotHashPrefix versions the hash input so a future payload format can
// never collide with v1 hashes.
const snapshotHashPrefix = "auction-snapshot|v1|"

// ComputeSnapshotHash computes the canonical hash of an encoded engine
// snapshot. Migration authorizations sign this value, binding the
// authorization to one exact snapshot.
//
// Formula: SHA256("auction-snapshot|v1|" + body)
func ComputeSnapshotHash(body []byte) string {
	h := sha256.New()
	h.Write([]byte(snapshotHashPrefix))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}
