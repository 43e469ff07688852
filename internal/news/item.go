package news

import "time"

// SourceKind tags where an item was ingested from.
type SourceKind string

const (
	SourceRSS     SourceKind = "rss"
	SourceSitemap SourceKind = "sitemap"
)

// Item is one normalized news record. GUID is the dedup key: stable across
// refetches and globally unique (feeds use the entry id, sitemaps the URL).
//
// TranslatedTitle and TranslatedDescription are transient enrichment output.
// They travel over the wire but are never persisted as authoritative fields.
type Item struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link"`
	PublishedAt time.Time  `json:"published"`
	Tickers     string     `json:"stock_tickers,omitempty"`
	MediaURL    string     `json:"media_url,omitempty"`
	Source      SourceKind `json:"source"`

	TranslatedTitle       string `json:"translated_title,omitempty"`
	TranslatedDescription string `json:"translated_description,omitempty"`
}
