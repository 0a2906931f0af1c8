package service

import (
	"fmt"
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render replaces every {{key}} with the matching variable. Missing keys render
// as the empty string and substituted values are never expanded again.
func Render(text string, variables map[string]any) string {
	if text == "" {
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-2]
		value, ok := variables[key]
		if !ok || value == nil {
			return ""
		}
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	})
}
