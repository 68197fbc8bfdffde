package util

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	reTags       = regexp.MustCompile(`<[^>]+>`)
	reNonAlnum   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	reSalaryKey  = regexp.MustCompile(`(?i)(?:salary|compensation)[^\d$]{0,20}(\$?\d[\d,]*(?:[kKmM])?(?:\s*[–\-]\s*\$?\d[\d,]*(?:[kKmM])?)?)`)
	reSalaryUSD  = regexp.MustCompile(`(\$\d[\d,]*(?:\.\d+)?(?:[kKmM])?(?:\s*[–\-]\s*\$\d[\d,]*(?:\.\d+)?(?:[kKmM])?)?)`)
	reEmployment = regexp.MustCompile(`(?i)\b(full[-\s]?time|part[-\s]?time|contract|temporary|intern(?:ship)?)\b`)
)

// CleanText folds to NFKC, turns NBSP into spaces and collapses whitespace,
// so "  Remote " and "Remote" normalize identically.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// StripTags removes markup, unescapes entities and cleans the result.
func StripTags(s string) string {
	s = reTags.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return CleanText(s)
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}

	loc = strings.TrimPrefix(loc, "Location:")
	loc = strings.TrimPrefix(loc, "LOCATIONS:")
	loc = strings.TrimSpace(loc)

	// Case-insensitive duplicates collapse into the first position; a
	// capitalized spelling wins over a lowercase one.
	parts := strings.Split(loc, ",")
	at := map[string]int{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if i, ok := at[k]; ok {
			if !capitalized(out[i]) && capitalized(p) {
				out[i] = p
			}
			continue
		}
		at[k] = len(out)
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

func capitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func normKey(s string) string {
	s = strings.ToLower(CleanText(s))
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// DedupeKey identifies a posting by title and company. Board-specific title
// suffixes ("Dev @ Acme", "Dev, Acme") are cut so both boards agree.
func DedupeKey(title, company string) string {
	t := strings.ToLower(CleanText(title))
	if i := strings.Index(t, "@"); i >= 0 {
		t = t[:i]
	}
	if i := strings.Index(t, ","); i >= 0 {
		t = t[:i]
	}
	return normKey(t) + "|" + normKey(company)
}

// RecordID is the stable feed id for a dedupe key.
func RecordID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func ParseSalary(text string) string {
	if m := reSalaryKey.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reSalaryUSD.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func ParseEmployment(text string) string {
	if m := reEmployment.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var skillKeys = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)\bdjango\b`), "Django"},
	{regexp.MustCompile(`(?i)\bpython\b`), "Python"},
	{regexp.MustCompile(`(?i)\bpostgres(?:ql)?\b`), "Postgresql"},
	{regexp.MustCompile(`(?i)\baws\b`), "AWS"},
	{regexp.MustCompile(`(?i)\bkubernetes\b`), "Kubernetes"},
	{regexp.MustCompile(`(?i)\bdocker\b`), "Docker"},
	{regexp.MustCompile(`(?i)\brest(?:ful)?\b`), "REST"},
	{regexp.MustCompile(`(?i)\bapis?\b`), "API"},
	{regexp.MustCompile(`(?i)\bpytest\b`), "Pytest"},
	{regexp.MustCompile(`(?i)\bsql\b`), "SQL"},
	{regexp.MustCompile(`(?i)\breact\b`), "React"},
}

// SkillsFromText returns known skills in a fixed order; nil when none match.
func SkillsFromText(text string) []string {
	var out []string
	for _, k := range skillKeys {
		if k.re.MatchString(text) {
			out = append(out, k.label)
		}
	}
	return out
}

// Clip cuts s to at most n runes.
func Clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
