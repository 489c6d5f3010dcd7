// mopchan/utils/security.go
package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

const tripcodeSalt = "mopchan-salt-shaker"

// GetIPAddress extracts the real IP address from a request, trusting
// forwarding headers set by a reverse proxy.
func GetIPAddress(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// GenerateTripcode processes a name string to produce a display name and a
// tripcode. The tripcode is a content-derived pseudonym, not a credential:
// the same "#password" suffix always yields the same code.
func GenerateTripcode(name string) (string, string) {
	parts := strings.SplitN(name, "#", 2)
	displayName := strings.TrimSpace(parts[0])
	if len(parts) < 2 || parts[1] == "" {
		return displayName, ""
	}
	h := sha256.Sum256([]byte(parts[1] + tripcodeSalt))
	trip := base64.StdEncoding.EncodeToString(h[:])
	return displayName, "!" + trip[:10]
}
