package disc

import (
	"strings"
	"unicode"
)

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// SanitizeFilename makes a title or name safe to use as a single path
// component.
func SanitizeFilename(name string) string {
	cleaned := filenameReplacer.Replace(name)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	switch cleaned {
	case "", ".", "..":
		return "_"
	}
	return cleaned
}
