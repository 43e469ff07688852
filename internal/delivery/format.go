package delivery

import (
	"html"
	"strings"

	"newswire/internal/news"
)

// Telegram channel limits, in characters.
const (
	captionLimit = 1024
	textLimit    = 4096
)

const descriptionLimit = 300

// markdownV2Reserved is the full MarkdownV2 escape set. User-controlled text
// is escaped with all of it; emphasis and code markers are added by the
// formatter afterwards, around already-escaped text.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!"

func escapeMarkdownV2(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL escapes the characters Telegram treats specially inside a
// MarkdownV2 inline-link target.
func escapeLinkURL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `)`, `\)`)
}

// FormatMessage renders one item as a MarkdownV2 message: title, emphasized
// translation, clipped description, ticker tag and a read-more link,
// separated by blank lines and closed with a rule.
func FormatMessage(it news.Item) string {
	title := html.UnescapeString(it.Title)
	if title == "" {
		title = "Untitled"
	}
	description := truncateRunes(html.UnescapeString(it.Description), descriptionLimit)
	translatedTitle := html.UnescapeString(it.TranslatedTitle)
	translatedDescription := html.UnescapeString(it.TranslatedDescription)

	parts := make([]string, 0, 6)
	parts = append(parts, escapeMarkdownV2(title))
	if translatedTitle != "" {
		parts = append(parts, "*"+escapeMarkdownV2(translatedTitle)+"*")
	}
	if description != "" {
		parts = append(parts, escapeMarkdownV2(description))
	}
	if translatedDescription != "" {
		parts = append(parts, "*"+escapeMarkdownV2(translatedDescription)+"*")
	}
	if it.Tickers != "" {
		parts = append(parts, "*Stock*: `"+it.Tickers+"`")
	}
	link := it.Link
	if link == "" {
		link = "#"
	}
	parts = append(parts, "[Read ALL]("+escapeLinkURL(link)+")")

	return strings.Join(parts, "\n\n") + "\n\n" + strings.Repeat("▬", 20)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
