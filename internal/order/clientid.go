package order

import (
	"strings"

	"github.com/google/uuid"
)

// MaxClientIDLen is the venue's limit on newClientOrderId.
const MaxClientIDLen = 36

// NewClientID returns prefix followed by random hex, at most MaxClientIDLen long.
func NewClientID(prefix string) string {
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > MaxClientIDLen {
		id = id[:MaxClientIDLen]
	}
	return id
}

// Owned reports whether a client order id was issued with prefix.
func Owned(prefix, clientID string) bool {
	return prefix != "" && strings.HasPrefix(clientID, prefix)
}
