package platform

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// APIKeyPrefix marks tenant management keys.
const APIKeyPrefix = "dom_"

func NewID() string {
	return uuid.New().String()
}

// NewAPIKey returns a random raw API key. Only its hash is ever stored.
func NewAPIKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return APIKeyPrefix + hex.EncodeToString(b)
}
