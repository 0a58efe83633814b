package authapi

import (
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/mssola/useragent"
)

const maxDeviceLabel = 128

// deviceLabel turns a User-Agent into a short label such as
// "Chrome 126 on Windows 10".
func deviceLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "unknown"
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	label := strings.TrimSpace(name)
	if major, _, _ := strings.Cut(version, "."); label != "" && major != "" {
		label += " " + major
	}
	if osName := strings.TrimSpace(ua.OS()); osName != "" {
		if label == "" {
			label = osName
		} else {
			label += " on " + osName
		}
	}
	if label == "" {
		label = raw
	}
	return truncateRunes(label, maxDeviceLabel)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipKey(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}
