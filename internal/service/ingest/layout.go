package ingest

import (
	"strings"
)

const maxNameLength = 200

// Sanitize makes a document stem safe to use as an object name: bytes
// outside printable ASCII become "_", the result is cut to 200 characters,
// and an empty name becomes "document".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 32 || r > 126 {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	if out == "" {
		return "document"
	}
	return out
}

// OutputKey is "<root><year>/<sanitized stem>.json".
func OutputKey(root, year, stem string) string {
	return root + year + "/" + Sanitize(stem) + ".json"
}
