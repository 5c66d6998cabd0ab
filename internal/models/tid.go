package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewTID generates an internal transaction identifier ("TID" + 10 hex
// chars), distinct from any blockchain transaction hash.
func NewTID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken anyway.
		panic(err)
	}
	return "TID" + strings.ToUpper(hex.EncodeToString(buf))
}
