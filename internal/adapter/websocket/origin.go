package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// NewCheckOrigin returns the upgrader's CheckOrigin function. It allows empty origins
// (non-browser clients), obs:// origins (OBS browser docks hosting the dashboard), and the
// app's own origin derived from appURL. In development, localhost origins are allowed too.
func NewCheckOrigin(appURL string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "":
			return true
		case strings.HasPrefix(origin, "obs://"):
			return true
		case appOrigin != "" && origin == appOrigin:
			return true
		case isDevelopment && isLocalhostOrigin(origin):
			return true
		}

		slog.Warn("Observer origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
