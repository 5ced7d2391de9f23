package report

import (
	"regexp"
	"strings"
)

var (
	summaryHeading = regexp.MustCompile(`(?i)^\s{0,3}#{1,6}\s*summary\s*:?\s*$`)
	anyHeading     = regexp.MustCompile(`^\s{0,3}#{1,6}(\s|$|[^#])`)
)

// Summary returns the body of the first "Summary" heading in text, up to the
// next heading of any level. Leading and trailing blank lines are dropped.
// Returns "" when no summary heading exists.
func Summary(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	start := -1
	for i, line := range lines {
		if summaryHeading.MatchString(line) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if anyHeading.MatchString(lines[i]) {
			end = i
			break
		}
	}

	body := lines[start:end]
	for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
		body = body[1:]
	}
	for len(body) > 0 && strings.TrimSpace(body[len(body)-1]) == "" {
		body = body[:len(body)-1]
	}
	return strings.Join(body, "\n")
}
