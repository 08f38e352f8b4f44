package utils

import (
	"regexp"
	"strings"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\s\x00-\x1F]`) // Invalid on Windows/Unix, plus whitespace
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

const maxFilenameLen = 80

// SanitizeFilename turns an arbitrary group name into a safe filename component.
// "Sega Master System" -> "Sega_Master_System".
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxFilenameLen {
		s = strings.Trim(s[:maxFilenameLen], "_")
	}
	if s == "" {
		s = "unnamed"
	}
	return s
}
