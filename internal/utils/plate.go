package utils

import "strings"

// cyrillicLookalikes maps Cyrillic letters that OCR engines and operators
// commonly confuse with Latin plate characters.
var cyrillicLookalikes = map[rune]rune{
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H',
	'О': 'O', 'Р': 'P', 'С': 'C', 'Т': 'T', 'У': 'Y', 'Х': 'X',
}

// NormalizePlate trims, uppercases and strips everything outside A-Z0-9.
func NormalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if plate == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range plate {
		if latin, ok := cyrillicLookalikes[r]; ok {
			r = latin
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
