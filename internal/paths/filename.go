package paths

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxFilenameLen is the default byte bound for sanitized file names.
	MaxFilenameLen = 200

	// maxExtLen bounds the extension kept when truncating.
	maxExtLen = 16

	fallbackFilename = "attachment"
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename turns an arbitrary string into a file name that is safe
// to create inside a staging directory.
// Rules:
// - Directory components (either separator) are dropped
// - Control characters are removed, reserved characters become '_'
// - Runs of whitespace collapse to one space; leading/trailing dots and spaces are trimmed
// - Device names reserved on Windows get a '_' prefix
// - Result is at most maxLen bytes (MaxFilenameLen when maxLen <= 0), keeping the extension
// - Empty results become "attachment"
func SanitizeFilename(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxFilenameLen
	}

	if idx := strings.LastIndexAny(s, `/\`); idx >= 0 {
		s = s[idx+1:]
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		case unicode.IsControl(r):
			continue
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
			lastSpace = false
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	name := strings.Trim(b.String(), " .")
	if name == "" {
		return fallbackFilename
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if reservedNames[strings.ToUpper(stem)] {
		name = "_" + name
	}

	return truncateFilename(name, maxLen)
}

// truncateFilename shortens name to maxLen bytes on a rune boundary,
// preserving a short extension when there is room for it.
func truncateFilename(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) > maxExtLen || len(ext) >= maxLen {
		ext = ""
	}
	stem := truncateBytes(strings.TrimSuffix(name, ext), maxLen-len(ext))
	stem = strings.TrimRight(stem, " .")
	if stem == "" {
		return truncateBytes(fallbackFilename, maxLen)
	}
	return stem + ext
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
