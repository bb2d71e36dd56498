// Package runid derives short deterministic identifiers for snapshot runs,
// used to correlate log lines, audit rows and archived record sets.
package runid

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// idBytes is how much of the digest survives into the identifier.
const idBytes = 8

// New computes a run identifier using SHA256.
// Formula: base58(SHA256(actor|contract|started_ns)[:8])
func New(actorID, contract string, startedUnixNano int64) string {
	data := fmt.Sprintf("%s|%s|%d", actorID, contract, startedUnixNano)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:idBytes])
}
