package feed

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

// RSSSource fetches and normalizes one RSS/Atom feed.
type RSSSource struct {
	url    string
	parser *gofeed.Parser
	log    logx.Logger
}

func NewRSSSource(url string, timeout time.Duration, log logx.Logger) *RSSSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := gofeed.NewParser()
	p.Client = newHTTPClient(timeout)
	return &RSSSource{url: url, parser: p, log: log}
}

func (s *RSSSource) Name() string { return "rss:" + s.url }

func (s *RSSSource) Fetch(ctx context.Context) ([]news.Item, error) {
	f, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]news.Item, 0, len(f.Items))
	for _, entry := range f.Items {
		it, ok := s.normalize(entry)
		if !ok {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *RSSSource) normalize(entry *gofeed.Item) (news.Item, bool) {
	if entry == nil {
		return news.Item{}, false
	}

	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}
	if published == nil {
		s.log.Warn("rss entry skipped: no parsable timestamp",
			logx.String("feed", s.url), logx.String("title", entry.Title))
		return news.Item{}, false
	}

	guid := strings.TrimSpace(entry.GUID)
	if guid == "" {
		guid = strings.TrimSpace(entry.Link)
	}
	if guid == "" {
		s.log.Warn("rss entry skipped: no guid or link", logx.String("feed", s.url))
		return news.Item{}, false
	}

	it := news.Item{
		GUID:        guid,
		Title:       strings.TrimSpace(entry.Title),
		Description: flattenHTML(entry.Description),
		Link:        entry.Link,
		PublishedAt: published.UTC(),
		Tickers:     strings.Join(entry.Categories, ", "),
		Source:      news.SourceRSS,
	}
	if len(entry.Enclosures) > 0 && entry.Enclosures[0].URL != "" {
		it.MediaURL = entry.Enclosures[0].URL
	} else if entry.Image != nil {
		it.MediaURL = entry.Image.URL
	}
	return it, true
}
