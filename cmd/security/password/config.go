package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords. The defaults mirror the sign-up form
// (6..100 characters).
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login Argon2id costs and the sign-up policy.
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 6,
			MaxLength: 100,
		},
	}
}

// envSetter applies one WL_* variable onto cfg.
type envSetter struct {
	key   string
	apply func(cfg *Config, raw string) error
}

var envSetters = []envSetter{
	{"WL_PASSWORD_MIN_LEN", func(c *Config, s string) (err error) {
		c.Policy.MinLength, err = parseIntInRange(s, 1, 1024)
		return err
	}},
	{"WL_PASSWORD_MAX_LEN", func(c *Config, s string) (err error) {
		c.Policy.MaxLength, err = parseIntInRange(s, 1, 4096)
		return err
	}},
	{"WL_PASSWORD_REJECT_VERY_WEAK", func(c *Config, s string) (err error) {
		c.Policy.RejectVeryWeak, err = strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid boolean")
		}
		return nil
	}},
	{"WL_ARGON2_MEMORY_KIB", func(c *Config, s string) (err error) {
		c.Params.MemoryKiB, err = parseU32InRange(s, 8*1024, 1024*1024)
		return err
	}},
	{"WL_ARGON2_ITERATIONS", func(c *Config, s string) (err error) {
		c.Params.Iterations, err = parseU32InRange(s, 1, 20)
		return err
	}},
	{"WL_ARGON2_PARALLELISM", func(c *Config, s string) error {
		u, err := parseU32InRange(s, 1, math.MaxUint8)
		if err != nil {
			return err
		}
		c.Params.Parallelism = uint8(u) // #nosec G115 -- bounded above.
		return nil
	}},
	{"WL_ARGON2_SALT_LEN", func(c *Config, s string) (err error) {
		c.Params.SaltLength, err = parseU32InRange(s, 8, 64)
		return err
	}},
	{"WL_ARGON2_KEY_LEN", func(c *Config, s string) (err error) {
		c.Params.KeyLength, err = parseU32InRange(s, 16, 64)
		return err
	}},
}

// FromEnv starts from DefaultConfig and applies any WL_PASSWORD_* / WL_ARGON2_*
// overrides present in the environment.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, s := range envSetters {
		raw, ok := os.LookupEnv(s.key)
		if !ok {
			continue
		}
		if err := s.apply(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseIntInRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return n, nil
}

func parseU32InRange(s string, lo, hi uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < lo || u > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return u, nil
}
