package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseAPIKey extracts secret_id and random_data from API key format.
// Format: pm-v1-<secret_id>-<random_data> (102 chars total).
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 {
		return "", "", ErrInvalidKeyFormat
	}

	if parts[0] != "pm" {
		return "", "", ErrInvalidKeyFormat
	}

	if parts[1] != "v1" {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]

	// Validate secret_id is 32 hex chars (UUID without hyphens)
	if len(secretID) != 32 {
		return "", "", ErrInvalidKeyFormat
	}

	// Validate random_data is 64 hex chars (256 bits)
	if len(randomData) != 64 {
		return "", "", ErrInvalidKeyFormat
	}

	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// FormatAPIKey constructs an API key from components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("pm-v1-%s-%s", secretID, randomData)
}

// GenerateAPIKey creates a new random API key from crypto/rand.
// Used by the keys subcommand; the service itself never mints keys.
func GenerateAPIKey() (string, error) {
	var buf [48]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return FormatAPIKey(hex.EncodeToString(buf[:16]), hex.EncodeToString(buf[16:])), nil
}

// keyDigest hashes a full key for storage and comparison, so configured
// keys are not retained in the clear.
func keyDigest(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
