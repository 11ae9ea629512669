// Package id generates unique identifiers for locally named simulations.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a new unique simulation ID.
// Format: sim-<unix-timestamp>-<random hex>
// Example: sim-1735689600-4fa1b2c3
func Generate() string {
	ts := time.Now().Unix()
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand should never fail; timestamp alone keeps IDs usable
		return fmt.Sprintf("sim-%d", ts)
	}
	return fmt.Sprintf("sim-%d-%s", ts, hex.EncodeToString(buf))
}
