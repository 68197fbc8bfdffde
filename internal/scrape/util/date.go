package util

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"January 2, 2006",
	"Jan. 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ParseTime accepts the date shapes seen on the job boards and returns the
// instant in UTC truncated to seconds. ok is false for empty or relative
// text such as "3 days ago".
func ParseTime(s string) (t time.Time, ok bool) {
	s = CleanText(s)
	if s == "" {
		return time.Time{}, false
	}
	// Django's "N j, Y" writes September as "Sept."
	s = strings.Replace(s, "Sept.", "Sep.", 1)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC().Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}

// Looser variant for labels like "Posted: June 3, 2024".
func ParseTimeAfter(label, s string) (time.Time, bool) {
	if i := strings.Index(strings.ToLower(s), strings.ToLower(label)); i >= 0 {
		s = strings.TrimLeft(s[i+len(label):], ": \t")
	}
	return ParseTime(s)
}
