package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashFingerprint returns the hex SHA-256 of raw client fingerprint material.
// The raw value is never stored.
func HashFingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateInviteCode returns n random characters from [A-Z0-9].
func GenerateInviteCode(n int) (string, error) {
	max := big.NewInt(int64(len(inviteAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		b[i] = inviteAlphabet[idx.Int64()]
	}
	return string(b), nil
}
