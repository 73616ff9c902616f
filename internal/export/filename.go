package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ASCII alphanumerics, Turkish letters, spaces and hyphens survive;
	// everything else is stripped before whitespace collapsing.
	disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9çÇğĞıİöÖşŞüÜ\s-]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// SanitizeGroupName reduces a group name to a filesystem-safe base name.
func SanitizeGroupName(name string) string {
	cleaned := disallowedChars.ReplaceAllString(name, "")
	cleaned = whitespaceRuns.ReplaceAllString(strings.TrimSpace(cleaned), "_")
	if cleaned == "" {
		return "group"
	}
	return cleaned
}

// Filename builds the client-visible artifact name:
// {sanitized_group_name}_{DD-MM-YYYY}.{ext}
func Filename(groupName string, at time.Time, format Format) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeGroupName(groupName), at.Format("02-01-2006"), format.Ext())
}
