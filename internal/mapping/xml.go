package mapping

import (
	"encoding/xml"
	"strings"
)

// NormalizeXMLStorage strips newline, tab and carriage-return characters.
// This is the form XML/RSS bodies are persisted in.
func NormalizeXMLStorage(input string) string {
	r := strings.NewReplacer("\n", "", "\t", "", "\r", "")
	return r.Replace(input)
}

// NormalizeXMLForParse additionally strips a leading <?xml …?> prolog,
// which the token scanner doesn't need and some feeds malform.
func NormalizeXMLForParse(input string) string {
	normalized := NormalizeXMLStorage(input)
	if strings.HasPrefix(strings.TrimLeft(normalized, " "), "<?xml") {
		if idx := strings.Index(normalized, "?>"); idx >= 0 {
			return normalized[idx+2:]
		}
	}
	return normalized
}

func extractXML(raw string, m *Mapping) Fields {
	values := extractXMLValues(raw)

	lookup := func(path string) *string {
		if path == "" {
			return nil
		}
		return xmlLookup(values, m.ListPath, path)
	}

	f := Fields{
		Artist: lookup(m.ArtistPath),
		Title:  lookup(m.TitlePath),
		Album:  lookup(m.AlbumPath),
	}
	if s := lookup(m.ReportedAtPath); s != nil {
		f.ReportedAt = ParseReportedAt(*s)
	}
	if s := lookup(m.DurationPath); s != nil {
		f.DurationSeconds = ParseDurationSecondsStr(*s)
	}
	return f
}

// extractXMLValues scans the document once and produces a flat map from
// dotted element paths ("outer.inner.leaf") to the first non-empty text or
// CDATA content seen at that path.
func extractXMLValues(raw string) map[string]string {
	dec := xml.NewDecoder(strings.NewReader(NormalizeXMLForParse(raw)))
	dec.Strict = false

	var stack []string
	values := make(map[string]string)

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(stack) == 0 {
				continue
			}
			path := strings.Join(stack, ".")
			if _, seen := values[path]; !seen {
				values[path] = text
			}
		}
	}

	return values
}

// xmlLookup resolves a field path against the flat value map. With a list
// path, "list.field" is tried first; otherwise any entry equal to the path
// or ending in ".path" matches.
func xmlLookup(values map[string]string, listPath, fieldPath string) *string {
	if listPath != "" {
		if v, ok := values[listPath+"."+fieldPath]; ok {
			return &v
		}
	} else if v, ok := values[fieldPath]; ok {
		return &v
	}

	suffix := "." + fieldPath
	for key, v := range values {
		if key == fieldPath || strings.HasSuffix(key, suffix) {
			return &v
		}
	}
	return nil
}

// XMLToValue decodes an XML document into nested maps so JSON path mappings
// can be applied to sniffed XML bodies on JSON transports. Repeated sibling
// elements become arrays; attributes are dropped. Returns false if the body
// is not parseable XML.
func XMLToValue(raw string) (any, bool) {
	dec := xml.NewDecoder(strings.NewReader(NormalizeXMLForParse(raw)))
	dec.Strict = false

	root, err := decodeXMLElement(dec, nil)
	if err != nil || root == nil {
		return nil, false
	}
	return root, true
}

// decodeXMLElement consumes tokens until the matching end element, building
// a map of child elements (or a plain string for text-only elements).
func decodeXMLElement(dec *xml.Decoder, start *xml.StartElement) (any, error) {
	children := make(map[string]any)
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			if start == nil && len(children) == 1 {
				// Top level: return the single document element's content.
				for _, v := range children {
					return v, nil
				}
			}
			if start == nil && len(children) > 0 {
				return children, nil
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := t
			child, err := decodeXMLElement(dec, &el)
			if err != nil {
				return nil, err
			}
			name := el.Name.Local
			if existing, ok := children[name]; ok {
				if arr, ok := existing.([]any); ok {
					children[name] = append(arr, child)
				} else {
					children[name] = []any{existing, child}
				}
			} else {
				children[name] = child
			}
		case xml.EndElement:
			if len(children) > 0 {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		case xml.CharData:
			text.Write(t)
		}
	}
}
