package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/httpheaders"
	"github.com/snarg/np-engine/internal/mapping"
)

// userAgent is sent on every poll. Several station endpoints reject
// non-browser clients outright.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetchResult is one decoded observation, from either transport family.
type FetchResult struct {
	Status      int
	ContentType *string
	RawPayload  any
	Fields      mapping.Fields
}

// FetchAndParse performs one HTTP poll: resolve headers, GET, decode the
// body by transport, and extract fields. When the plain default headers
// fail (transport error or non-2xx), one retry with browser-like headers is
// attempted. Errors are fatal to this call; the caller applies backoff.
func FetchAndParse(ctx context.Context, conn *database.Connection, m *mapping.Mapping) (*FetchResult, error) {
	if mapping.IsWSType(conn.ConnectionType) {
		return nil, fmt.Errorf("websocket connections are handled by the ws listener")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	headers, usedDefaults := httpheaders.Resolve(conn.ConnectionType, conn.HeadersJSON)

	resp, err := sendRequest(ctx, client, conn.URL, headers)
	if err != nil {
		if !usedDefaults {
			return nil, err
		}
		resp, err = sendRequest(ctx, client, conn.URL, httpheaders.Browser(conn.ConnectionType, conn.URL))
		if err != nil {
			return nil, err
		}
	}

	if usedDefaults && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		// The retry is best-effort: keep the original response if it fails.
		if retry, retryErr := sendRequest(ctx, client, conn.URL, httpheaders.Browser(conn.ConnectionType, conn.URL)); retryErr == nil {
			resp.Body.Close()
			resp = retry
		}
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	var contentType *string
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		contentType = &ct
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	payload := decodeBody(conn.ConnectionType, body)
	fields := mapping.Extract(payload, m, conn.ConnectionType)

	return &FetchResult{
		Status:      status,
		ContentType: contentType,
		RawPayload:  payload,
		Fields:      fields,
	}, nil
}

func sendRequest(ctx context.Context, client *http.Client, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

// decodeBody turns the response body into the stored payload value.
// XML/RSS transports keep the body as one normalized string; other
// transports try JSON first, then sniff XML, then fall back to the raw
// string. Undecodable bodies are persisted verbatim.
func decodeBody(connectionType string, body []byte) any {
	if mapping.IsXMLType(connectionType) {
		return mapping.NormalizeXMLStorage(string(body))
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload
	}

	bodyStr := string(body)
	if strings.HasPrefix(strings.TrimLeft(bodyStr, " \t\r\n"), "<") {
		normalized := mapping.NormalizeXMLStorage(bodyStr)
		if v, ok := mapping.XMLToValue(normalized); ok {
			return v
		}
		return normalized
	}

	return bodyStr
}
