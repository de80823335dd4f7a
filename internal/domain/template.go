package domain

import "strings"

// DateToken is replaced by the current local date in output paths.
const DateToken = "{{date}}"

// RenderPath resolves the {{date}} token against the package clock.
func RenderPath(path string) string {
	if !strings.Contains(path, DateToken) {
		return path
	}
	return strings.ReplaceAll(path, DateToken, clock.Now().Local().Format(DateLayout))
}
