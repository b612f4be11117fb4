package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Token sizes in bytes, before encoding.
const (
	TokenSize128 = 16 // 22 chars base64url
	TokenSize256 = 32 // 43 chars base64url
	TokenSize512 = 64 // 86 chars base64url
)

// GenerateToken returns size random bytes encoded as unpadded base64url.
// Security stamps use TokenSize128; generated HMAC keys use TokenSize512.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is GenerateToken that panics on failure.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(err)
	}
	return token
}

// NewSecurityStamp returns a fresh per-user security stamp. Rotating the stamp
// invalidates every token issued against the previous value.
func NewSecurityStamp() string {
	return MustGenerateToken(TokenSize128)
}
