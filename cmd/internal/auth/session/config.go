package session

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/va4unsingh/socket-chat-app/cmd/security/token"
)

// TokenFormat selects the wire format of access and refresh tokens.
type TokenFormat string

const (
	// FormatJWT signs HS256 JWTs with separate access and refresh secrets.
	FormatJWT TokenFormat = "jwt"
	// FormatPaseto signs PASETO v4.public tokens with separate Ed25519 keys.
	FormatPaseto TokenFormat = "paseto"
)

// MinSecretBytes is the minimum length of an HS256 signing secret.
const MinSecretBytes = 32

// Config holds every tunable of the Session Manager. Durations are parsed
// once at load time.
type Config struct {
	// Issuer is the "iss" claim of every token.
	Issuer string
	Format TokenFormat

	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	VerificationTokenTTL  time.Duration
	PasswordResetTokenTTL time.Duration

	// ClockSkew forgives iat and nbf claims slightly ahead of the local clock.
	// Token and session-list expiry are exact.
	ClockSkew time.Duration

	// MaxSessions bounds the per-account session list.
	MaxSessions int

	// OneTimeTokenBytes is the entropy of verification and reset tokens.
	OneTimeTokenBytes int

	AccessTokenSecret  string
	RefreshTokenSecret string

	PasetoV4AccessSecretKeyHex  string
	PasetoV4RefreshSecretKeyHex string

	// RefreshHashKey switches refresh-token digests to HMAC-SHA256 when set.
	RefreshHashKey []byte
}

// DefaultConfig returns the production timings with no signing material.
func DefaultConfig() Config {
	return Config{
		Issuer:                "whisperlink",
		Format:                FormatJWT,
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		VerificationTokenTTL:  24 * time.Hour,
		PasswordResetTokenTTL: 10 * time.Minute,
		ClockSkew:             30 * time.Second,
		MaxSessions:           5,
		OneTimeTokenBytes:     token.DefaultOpaqueBytes,
	}
}

// LoadConfigFromEnv loads session configuration from WL_* variables.
//
// Required for WL_TOKEN_FORMAT=jwt (default):
//   - WL_ACCESS_TOKEN_SECRET, WL_REFRESH_TOKEN_SECRET (>= 32 bytes, distinct)
//
// Required for WL_TOKEN_FORMAT=paseto:
//   - WL_PASETO_V4_ACCESS_SECRET_KEY_HEX, WL_PASETO_V4_REFRESH_SECRET_KEY_HEX
//
// Optional:
//   - WL_AUTH_ISSUER
//   - WL_ACCESS_TOKEN_TTL, WL_REFRESH_TOKEN_TTL, WL_VERIFICATION_TOKEN_TTL,
//     WL_RESET_TOKEN_TTL, WL_AUTH_CLOCK_SKEW (Go durations)
//   - WL_MAX_SESSIONS, WL_ONE_TIME_TOKEN_BYTES
//   - WL_TOKEN_HMAC_KEY (refresh digests become HMAC-SHA256)
//
// Any invalid value yields ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WL_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("WL_TOKEN_FORMAT")); v != "" {
		cfg.Format = TokenFormat(strings.ToLower(v))
	}

	durations := []struct {
		key string
		dst *time.Duration
		min time.Duration
	}{
		{"WL_ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL, time.Second},
		{"WL_REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL, time.Second},
		{"WL_VERIFICATION_TOKEN_TTL", &cfg.VerificationTokenTTL, time.Second},
		{"WL_RESET_TOKEN_TTL", &cfg.PasswordResetTokenTTL, time.Second},
		{"WL_AUTH_CLOCK_SKEW", &cfg.ClockSkew, 0},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < d.min {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("WL_MAX_SESSIONS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return Config{}, ErrConfig
		}
		cfg.MaxSessions = n
	}
	if v := strings.TrimSpace(os.Getenv("WL_ONE_TIME_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.OneTimeTokenBytes = n
	}

	cfg.AccessTokenSecret = os.Getenv("WL_ACCESS_TOKEN_SECRET")
	cfg.RefreshTokenSecret = os.Getenv("WL_REFRESH_TOKEN_SECRET")
	cfg.PasetoV4AccessSecretKeyHex = strings.TrimSpace(os.Getenv("WL_PASETO_V4_ACCESS_SECRET_KEY_HEX"))
	cfg.PasetoV4RefreshSecretKeyHex = strings.TrimSpace(os.Getenv("WL_PASETO_V4_REFRESH_SECRET_KEY_HEX"))

	switch key, err := token.HMACKeyFromEnv(MinSecretBytes); {
	case err == nil:
		cfg.RefreshHashKey = key
	case errors.Is(err, token.ErrHMACKeyMissing):
	default:
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, token.HMACEnvKey, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants NewManager relies on. Failures wrap ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	case c.AccessTokenTTL >= c.RefreshTokenTTL:
		return fmt.Errorf("%w: access TTL must be shorter than refresh TTL", ErrConfig)
	case c.VerificationTokenTTL <= 0 || c.PasswordResetTokenTTL <= 0:
		return fmt.Errorf("%w: one-time token TTLs must be positive", ErrConfig)
	case c.MaxSessions < 1:
		return fmt.Errorf("%w: max sessions must be at least 1", ErrConfig)
	case c.OneTimeTokenBytes < 16:
		return fmt.Errorf("%w: one-time tokens need at least 16 bytes", ErrConfig)
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}

	switch c.Format {
	case FormatJWT:
		if len(c.AccessTokenSecret) < MinSecretBytes || len(c.RefreshTokenSecret) < MinSecretBytes {
			return fmt.Errorf("%w: access and refresh secrets must be at least %d bytes", ErrConfig, MinSecretBytes)
		}
		if c.AccessTokenSecret == c.RefreshTokenSecret {
			return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
		}
	case FormatPaseto:
		if c.PasetoV4AccessSecretKeyHex == "" || c.PasetoV4RefreshSecretKeyHex == "" {
			return fmt.Errorf("%w: paseto access and refresh keys are required", ErrConfig)
		}
		if c.PasetoV4AccessSecretKeyHex == c.PasetoV4RefreshSecretKeyHex {
			return fmt.Errorf("%w: paseto access and refresh keys must differ", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown token format %q", ErrConfig, c.Format)
	}
	return nil
}
