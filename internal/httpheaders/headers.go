// Package httpheaders picks request headers for polling connections.
// Connections without explicit headers get a per-transport Accept table;
// a browser-like variant is used when the plain defaults get rejected.
package httpheaders

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/snarg/np-engine/internal/mapping"
)

// Default returns the default header table for a transport.
func Default(connectionType string) map[string]string {
	h := map[string]string{
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
	}
	switch {
	case mapping.IsXMLType(connectionType):
		if strings.EqualFold(connectionType, "rss") {
			h["Accept"] = "application/rss+xml, application/xml;q=0.9, */*;q=0.8"
		} else {
			h["Accept"] = "application/xml, text/xml;q=0.9, */*;q=0.8"
		}
	case strings.EqualFold(connectionType, "http_text"):
		h["Accept"] = "text/plain, */*;q=0.8"
	default:
		h["Accept"] = "application/json, text/javascript, */*; q=0.01"
	}
	return h
}

// Browser returns the default table extended with browser-like headers.
// Origin and Referer are derived from the target URL when it parses.
func Browser(connectionType, rawURL string) map[string]string {
	h := Default(connectionType)
	h["Accept-Language"] = "en-US,en;q=0.9"
	if origin, ok := originForURL(rawURL); ok {
		h["Origin"] = origin
		h["Referer"] = origin + "/"
	}
	return h
}

// WantsDefaults reports whether the transport gets default headers when
// none are configured. WebSocket connections carry subscribe hints in
// headers_json, never request headers.
func WantsDefaults(connectionType string) bool {
	return !mapping.IsWSType(connectionType)
}

// Resolve picks the headers for a request. Returns the header map and
// whether the defaults were used (which permits a browser-header retry).
func Resolve(connectionType string, configured map[string]any) (map[string]string, bool) {
	if !WantsDefaults(connectionType) {
		return ToStringMap(configured), false
	}
	if len(configured) > 0 {
		return ToStringMap(configured), false
	}
	return Default(connectionType), true
}

// NormalizeForStorage substitutes the default table when a connection that
// wants defaults is saved without headers. WS headers are stored verbatim.
func NormalizeForStorage(connectionType string, headers map[string]any) map[string]any {
	if WantsDefaults(connectionType) && len(headers) == 0 {
		defaults := Default(connectionType)
		out := make(map[string]any, len(defaults))
		for k, v := range defaults {
			out[k] = v
		}
		return out
	}
	return headers
}

// ToStringMap flattens a headers_json object to string values. String
// values pass through; numbers and booleans are stringified; anything else
// is dropped.
func ToStringMap(headers map[string]any) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = formatNumber(val)
		case bool:
			out[k] = fmt.Sprintf("%t", val)
		}
	}
	return out
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func originForURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "", false
	}
	host := u.Hostname()
	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		return fmt.Sprintf("%s://%s:%s", u.Scheme, host, port), true
	}
	return fmt.Sprintf("%s://%s", u.Scheme, host), true
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
