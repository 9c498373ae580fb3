// Package rowenc renders field values as quoted, delimited text lines.
//
// Values are wrapped in double quotes and written verbatim: quotes or
// separators inside a value are not escaped.
package rowenc

import (
	"strings"

	"github.com/aaronromeo/epar/pkg/base"
	"github.com/aaronromeo/epar/pkg/extract"
)

// EncodeHeader renders the field names themselves as a row.
func EncodeHeader(fields []string, sep string) string {
	return encode(len(fields), func(i int) string { return fields[i] }, sep)
}

// EncodeRow renders values in the order of fields. An absent field renders as "".
func EncodeRow(fields []string, values extract.FieldMap, sep string) string {
	return encode(len(fields), func(i int) string { return values[fields[i]] }, sep)
}

func encode(n int, value func(int) string, sep string) string {
	if sep == "" {
		sep = base.DefaultSeparator
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteByte('"')
		b.WriteString(value(i))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	return b.String()
}
