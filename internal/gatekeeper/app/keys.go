package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

var errMissingSecurityKey = errors.New("app: JWT_SECURITY_KEY is required outside dev")

// initSigningKey returns the HS256 key. In dev an empty key is replaced by
// a random one, so every token dies with the process.
func initSigningKey(cfg Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SecurityKey != "" {
		if len(cfg.SecurityKey) < jwtx.MinHMACKeySize {
			return nil, fmt.Errorf("app: JWT_SECURITY_KEY: %w", jwtx.ErrKeyTooShort)
		}
		return []byte(cfg.SecurityKey), nil
	}

	if cfg.Env != "dev" {
		return nil, errMissingSecurityKey
	}

	key, err := cryptox.GenerateToken(cryptox.TokenSize512)
	if err != nil {
		return nil, fmt.Errorf("app: generate signing key: %w", err)
	}
	logger.Warn("JWT_SECURITY_KEY not set, using an ephemeral signing key")
	return []byte(key), nil
}
