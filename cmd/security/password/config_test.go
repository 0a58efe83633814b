package password

import (
	"os"
	"testing"
)

var envKeys = []string{
	"WL_PASSWORD_MIN_LEN",
	"WL_PASSWORD_MAX_LEN",
	"WL_PASSWORD_REJECT_VERY_WEAK",
	"WL_ARGON2_MEMORY_KIB",
	"WL_ARGON2_ITERATIONS",
	"WL_ARGON2_PARALLELISM",
	"WL_ARGON2_SALT_LEN",
	"WL_ARGON2_KEY_LEN",
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 6 || cfg.Policy.MaxLength != 100 {
		t.Fatalf("policy defaults = %+v, want 6..100", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != DefaultConfig().Params.MemoryKiB {
		t.Fatalf("memory mismatch")
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("WL_PASSWORD_MIN_LEN", "10")
	t.Setenv("WL_PASSWORD_MAX_LEN", "200")
	t.Setenv("WL_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("WL_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("WL_ARGON2_ITERATIONS", "4")
	t.Setenv("WL_ARGON2_PARALLELISM", "2")
	t.Setenv("WL_ARGON2_SALT_LEN", "24")
	t.Setenv("WL_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"min above max", map[string]string{"WL_PASSWORD_MIN_LEN": "20", "WL_PASSWORD_MAX_LEN": "10"}},
		{"memory too small", map[string]string{"WL_ARGON2_MEMORY_KIB": "16"}},
		{"bad bool", map[string]string{"WL_PASSWORD_REJECT_VERY_WEAK": "maybe"}},
		{"not a number", map[string]string{"WL_ARGON2_ITERATIONS": "three"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
