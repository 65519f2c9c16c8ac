package txid

import "github.com/google/uuid"

// New returns a fresh transaction id.
func New() string {
	return "tx-" + uuid.NewString()
}
