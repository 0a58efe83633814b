package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue trims key's value and converts it with parse. A blank variable,
// a parse error or a value that fails accept yields def.
func envValue[T any](key string, def T, parse func(string) (T, error), accept func(T) bool) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil || (accept != nil && !accept(v)) {
		return def
	}
	return v
}

func EnvString(key, def string) string {
	return envValue(key, def, func(s string) (string, error) { return s, nil }, nil)
}

func EnvBool(key string, def bool) bool {
	return envValue(key, def, strconv.ParseBool, nil)
}

// EnvInt accepts positive values only.
func EnvInt(key string, def int) int {
	return envValue(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt32 accepts zero, so pool minimums can be switched off.
func EnvInt32(key string, def int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envValue(key, def, parse, func(n int32) bool { return n >= 0 })
}

func EnvDuration(key string, def time.Duration) time.Duration {
	return envValue(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

// EnvList reads a comma-separated list. Blank entries are dropped; a list
// with nothing left keeps def.
func EnvList(key string, def []string) []string {
	parse := func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return envValue(key, def, parse, func(l []string) bool { return len(l) > 0 })
}
