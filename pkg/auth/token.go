package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const tokenByteLength = 32 // 256 bits

// GenerateToken returns a URL-safe, cryptographically random opaque token.
// Used for verification links, unlock links and session tokens.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenByteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// GenerateNumericCode returns a zero-padded numeric code of the given length
// drawn from crypto/rand. Used for two-factor challenges.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}
