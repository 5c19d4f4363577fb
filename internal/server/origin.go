// Package server enforces the configured origin allow-list on WebSocket
// handshakes. Origins compare by scheme and host, case-insensitively; a bare
// "*" entry admits every origin.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// normalizeOrigins canonicalizes the configured allow-list, dropping entries
// that are not parseable origins. The boolean reports whether a wildcard was
// configured.
func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	allowAll := false
	normalized := make([]string, 0, len(origins))
	for _, entry := range origins {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			// Skip blanks left behind by comma-separated env values.
		case entry == "*":
			allowAll = true
		default:
			canonical, ok := canonicalOrigin(entry)
			if !ok {
				log.Printf("Dropping unparseable origin from allow-list: %q", entry)
				continue
			}
			normalized = append(normalized, canonical)
		}
	}

	return normalized, allowAll
}

// canonicalOrigin reduces an origin to lowercase scheme://host form. Both
// parts must be present for the origin to count.
func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func isOriginAllowed(r *http.Request) bool {
	canonical, ok := canonicalOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}
	_, exists := allowedOrigins[canonical]
	return exists
}

// checkOrigin is the upgrader's origin gate. A missing or disallowed Origin
// header fails the handshake before any frame is exchanged.
func checkOrigin(r *http.Request) bool {
	if isOriginAllowed(r) {
		return true
	}
	log.Printf("Refusing WebSocket handshake from disallowed origin %q", r.Header.Get("Origin"))
	return false
}
