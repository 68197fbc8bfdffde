package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the cleaned text of the first selector that matches
// something non-empty.
func FirstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := CleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// LabeledValue finds a <b>/<strong> label such as "Location:" inside doc and
// returns the text that follows it within the same parent element.
func LabeledValue(doc *goquery.Document, label string) string {
	var out string
	doc.Find("b, strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		lt := CleanText(s.Text())
		if !strings.EqualFold(lt, label) {
			return true
		}
		parent := CleanText(s.Parent().Text())
		if i := strings.Index(parent, lt); i >= 0 {
			out = CleanText(parent[i+len(lt):])
		}
		return out == ""
	})
	return out
}
