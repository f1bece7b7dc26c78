package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveBaseURL picks the backend endpoint for a deployment. Loopback origins
// are served by the local development backend at devURL; every other origin
// hosts the backend itself.
func ResolveBaseURL(origin, devURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must include scheme and host", origin)
	}

	if isLoopback(u.Hostname()) {
		if devURL == "" {
			return "", fmt.Errorf("origin %q is local but no development URL is configured", origin)
		}
		return strings.TrimRight(devURL, "/"), nil
	}
	return u.Scheme + "://" + u.Host, nil
}

func isLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
