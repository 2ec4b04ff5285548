package render

import (
	"regexp"
	"strings"
)

// citationPattern matches file-search citation markers such as 【4:0†source】
// and their ASCII-bracket variant [4:0†notes.pdf].
var citationPattern = regexp.MustCompile(`(?:【\d+(?::\d+)?†[^】]*】|\[\d+(?::\d+)?†[^\]]*\])`)

// Sanitize strips citation markers from text. It never fails; text without
// markers is returned unchanged.
func Sanitize(text string) string {
	if !strings.Contains(text, "†") {
		return text
	}
	return citationPattern.ReplaceAllString(text, "")
}
