package security

import (
	"bytes"
	"encoding/json"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#039;",
	"<", "&lt;",
	">", "&gt;",
)

// Escape HTML-encodes s for output, quotes included.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

// StripTags removes markup from s and keeps the text between tags as
// written, entities included. Comments and doctypes are dropped.
func StripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}

// CleanString strips tags and trims surrounding whitespace.
func CleanString(s string) string {
	return strings.TrimSpace(StripTags(s))
}

// Clean applies CleanString to v, recursing into slices and maps.
// Non-string leaves are returned unchanged.
func Clean(v any) any {
	switch t := v.(type) {
	case string:
		return CleanString(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = CleanString(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clean(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = CleanString(s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clean(e)
		}
		return out
	default:
		return v
	}
}

// DecodeJSON reads a JSON object from r, cleans every value except the
// top-level keys listed in raw, and decodes the result into dst.
func DecodeJSON(r io.Reader, dst any, raw ...string) error {
	var payload map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return err
	}

	for k, v := range payload {
		if slices.Contains(raw, k) {
			continue
		}
		payload[k] = Clean(v)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}
	return json.NewDecoder(&buf).Decode(dst)
}
