// Package mapping extracts canonical now-playing fields (artist, title,
// album, reported_at, duration) from transport-specific payloads, driven by
// a declarative per-connection mapping.
package mapping

import (
	"strings"
	"time"
)

// Mapping is the parsed form of a payload_mappings.mapping_json object.
// All paths are dotted key paths for JSON payloads and dotted element
// paths for XML payloads.
type Mapping struct {
	ListPath       string
	ArtistPath     string
	TitlePath      string
	AlbumPath      string
	ReportedAtPath string
	DurationPath   string
}

// FromObject parses the recognized keys out of a mapping_json object.
// Unknown keys are ignored so mappings can carry extra metadata.
func FromObject(obj map[string]any) *Mapping {
	if obj == nil {
		return nil
	}
	str := func(key string) string {
		if v, ok := obj[key].(string); ok {
			return v
		}
		return ""
	}
	return &Mapping{
		ListPath:       str("list_path"),
		ArtistPath:     str("artist_path"),
		TitlePath:      str("title_path"),
		AlbumPath:      str("album_path"),
		ReportedAtPath: str("reported_at_path"),
		DurationPath:   str("duration_path"),
	}
}

// Fields is the extraction result. Nil means the field was not found.
type Fields struct {
	Artist          *string
	Title           *string
	Album           *string
	ReportedAt      *time.Time
	DurationSeconds *int64
}

func (f Fields) empty() bool {
	return f.Artist == nil && f.Title == nil && f.Album == nil &&
		f.ReportedAt == nil && f.DurationSeconds == nil
}

// IsWSType reports whether the connection type is a WebSocket transport.
func IsWSType(connectionType string) bool {
	return strings.EqualFold(connectionType, "ws_json")
}

// IsXMLType reports whether the connection type is an XML transport.
func IsXMLType(connectionType string) bool {
	switch strings.ToLower(connectionType) {
	case "http_xml", "rss":
		return true
	}
	return false
}

// Extract pulls fields from a decoded payload. With a mapping, paths are
// resolved against the payload (XML payloads arrive as a single string and
// go through the element-path scan). Without one, well-known keys are
// probed at the root.
func Extract(payload any, m *Mapping, connectionType string) Fields {
	if m != nil {
		if IsXMLType(connectionType) {
			if xml, ok := payload.(string); ok {
				return extractXML(xml, m)
			}
		}
		return extractMapped(payload, m)
	}
	return extractBestEffort(payload, connectionType)
}

func extractMapped(payload any, m *Mapping) Fields {
	// Envelope unwrap: if the mapping finds nothing at the root and the
	// payload is a single-keyed object, retry with that value as root.
	candidates := []any{payload}
	if obj, ok := payload.(map[string]any); ok && len(obj) == 1 {
		for _, v := range obj {
			candidates = append(candidates, v)
		}
	}

	for _, base := range candidates {
		target := base
		if m.ListPath != "" {
			if list, ok := getPath(base, m.ListPath); ok {
				if arr, ok := list.([]any); ok && len(arr) > 0 {
					target = arr[0]
				}
			}
		}

		f := Fields{
			Artist: stringAtPath(target, m.ArtistPath),
			Title:  stringAtPath(target, m.TitlePath),
			Album:  stringAtPath(target, m.AlbumPath),
		}
		if s := stringAtPath(target, m.ReportedAtPath); s != nil {
			f.ReportedAt = ParseReportedAt(*s)
		}
		if m.DurationPath != "" {
			if v, ok := getPath(target, m.DurationPath); ok {
				f.DurationSeconds = ParseDurationSecondsValue(v)
			}
		}

		if !f.empty() {
			return f
		}
	}

	return Fields{}
}

func extractBestEffort(payload any, connectionType string) Fields {
	switch v := payload.(type) {
	case map[string]any:
		f := Fields{
			Artist: firstString(v, "artist", "artistName"),
			Title:  firstString(v, "title", "song", "trackName"),
			Album:  firstString(v, "album", "collectionName"),
		}
		for _, key := range []string{"duration", "durationSeconds", "duration_seconds"} {
			if raw, ok := v[key]; ok {
				f.DurationSeconds = ParseDurationSecondsValue(raw)
				break
			}
		}
		return f
	case []any:
		if len(v) > 0 {
			return extractBestEffort(v[0], connectionType)
		}
	}
	return Fields{}
}

// getPath descends through nested object keys along a dotted path.
// Empty segments are skipped. Arrays are not indexed.
func getPath(val any, path string) (any, bool) {
	curr := val
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		obj, ok := curr.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[part]
		if !ok {
			return nil, false
		}
		curr = next
	}
	return curr, true
}

func stringAtPath(val any, path string) *string {
	if path == "" {
		return nil
	}
	v, ok := getPath(val, path)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func firstString(obj map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			return &s
		}
	}
	return nil
}
