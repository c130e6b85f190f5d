package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type clientMetadataKey struct{}

// ClientMetadata describes the caller of a request. It is provenance for
// audit records only and never participates in protocol decisions.
type ClientMetadata struct {
	IP    string
	Agent string
}

// WithClientMetadata extracts the client IP and a condensed user-agent label
// from the request and stores them on the context for handlers and services.
func WithClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := ClientMetadata{
			IP:    clientIP(r),
			Agent: agentLabel(r.Header.Get("User-Agent")),
		}
		ctx := context.WithValue(r.Context(), clientMetadataKey{}, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientMetadata retrieves the client metadata from the context.
func GetClientMetadata(ctx context.Context) ClientMetadata {
	if meta, ok := ctx.Value(clientMetadataKey{}).(ClientMetadata); ok {
		return meta
	}
	return ClientMetadata{}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// agentLabel condenses a raw User-Agent header into "browser/os/platform".
// Raw UA strings are high-cardinality and can carry junk; the condensed form
// is what verification log entries record.
func agentLabel(raw string) string {
	if raw == "" {
		return ""
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}

	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}

	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	} else if ua.Bot() {
		platform = "bot"
	}

	return browser + "/" + os + "/" + platform
}
