package application

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// validHandle reports whether a cross-reference value looks like a real
// target-system handle. Anything else (empty, placeholder text, stray
// punctuation) is treated as unset.
func validHandle(s string) bool {
	return handlePattern.MatchString(s)
}

// formatName turns the report's "Last, First" person format into the
// "First Last" form the workspace directory stores.
func formatName(s string) string {
	s = strings.TrimSpace(s)
	last, first, ok := strings.Cut(s, ",")
	if !ok {
		return s
	}
	return strings.TrimSpace(first) + " " + strings.TrimSpace(last)
}

// displayName strips a team prefix such as "HDM | Jane Doe" down to the
// person's name.
func displayName(s string) string {
	if idx := strings.LastIndex(s, "|"); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}

// dropType derives the placement type from a position path like
// "Site | Newsletter | Leaderboard": the last segment, lowercased.
func dropType(positionPath string) string {
	return strings.ToLower(displayName(positionPath))
}

// shortTasklistName reduces a template name like "newsletter_Launch Prep"
// to the part after the last underscore.
func shortTasklistName(templateName string) string {
	if idx := strings.LastIndex(templateName, "_"); idx >= 0 {
		return templateName[idx+1:]
	}
	return templateName
}

var reportDateLayouts = []string{"01/02/2006", "1/2/2006"}

// offsetDate shifts a report date by the given number of days, keeping
// the report's format. Unparseable input passes through untouched.
func offsetDate(s string, days int) string {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.AddDate(0, 0, days).Format("01/02/2006")
		}
	}
	return s
}

// parseID reads a report id cell, tolerating thousands separators.
func parseID(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseInt(s, 10, 64)
}
