package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACKeySize is the smallest accepted HS256 key, in bytes.
const MinHMACKeySize = 32

// ErrKeyTooShort is returned for HMAC keys below MinHMACKeySize.
var ErrKeyTooShort = fmt.Errorf("jwtx: hmac key must be at least %d bytes", MinHMACKeySize)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256Signer signs tokens with a shared symmetric key.
type HS256Signer struct {
	key []byte
}

// NewSignerHS256 creates an HS256 signer. The key is copied.
func NewSignerHS256(key []byte) (*HS256Signer, error) {
	if len(key) < MinHMACKeySize {
		return nil, ErrKeyTooShort
	}
	return &HS256Signer{key: append([]byte(nil), key...)}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign turns the claims into a compact signed JWT.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	if len(s.key) == 0 {
		return "", errors.New("jwtx: nil hmac key")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.key)
}
