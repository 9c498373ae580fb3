// Package extract pulls "Name: value" lines out of a message body.
package extract

import "strings"

// FieldMap maps a field name to its extracted value. Fields that matched no
// line are missing; a matched empty value is present as "".
type FieldMap map[string]string

// Extract scans body line by line. A line matches a field when it starts with
// exactly "<field>: ". The trimmed remainder becomes the value, and a later
// match for the same field replaces an earlier one. Folded header
// continuations are not joined.
func Extract(body string, fields []string) FieldMap {
	values := FieldMap{}
	for _, line := range strings.Split(body, "\n") {
		for _, field := range fields {
			prefix := field + ": "
			if strings.HasPrefix(line, prefix) {
				values[field] = strings.TrimSpace(line[len(prefix):])
			}
		}
	}
	return values
}
