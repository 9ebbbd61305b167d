package executor

import (
	"strings"
)

// Windows-reserved device names. A file called CON breaks the tree for
// anyone unpacking the result on Windows.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

const forbiddenChars = `<>:"/\|?*`

// SanitizeFileName makes a single path component safe on every mainstream
// filesystem: forbidden and control characters stripped, surrounding spaces
// and trailing dots trimmed, reserved DOS names prefixed, empty results
// replaced with "unnamed".
func SanitizeFileName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		sb.WriteRune(r)
	}
	cleaned := strings.TrimSpace(sb.String())
	cleaned = strings.TrimRight(cleaned, ". ")
	if cleaned == "" {
		return "unnamed"
	}

	stem := cleaned
	if idx := strings.IndexByte(cleaned, '.'); idx > 0 {
		stem = cleaned[:idx]
	}
	if reservedNames[strings.ToUpper(stem)] {
		cleaned = "_" + cleaned
	}
	return cleaned
}
