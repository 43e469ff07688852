package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// flattenHTML reduces an HTML-bearing feed description to plain text so the
// downstream message formatter never has to deal with markup. Plain strings
// pass through untouched apart from whitespace trimming.
func flattenHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsRune(s, '<') {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
