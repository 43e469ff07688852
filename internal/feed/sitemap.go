package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

// SitemapSource fetches a Google news-sitemap XML document. The entry URL
// doubles as the GUID, which keeps it stable across refetches.
type SitemapSource struct {
	url    string
	client *http.Client
	log    logx.Logger
}

func NewSitemapSource(url string, timeout time.Duration, log logx.Logger) *SitemapSource {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SitemapSource{url: url, client: newHTTPClient(timeout), log: log}
}

func (s *SitemapSource) Name() string { return "sitemap" }

func (s *SitemapSource) Fetch(ctx context.Context) ([]news.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return s.parse(body)
}

// Schema: sitemap.org urlset with google news and image extensions.
type sitemapDoc struct {
	URLs []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc  string `xml:"loc"`
	News *struct {
		PublicationDate string `xml:"publication_date"`
		Title           string `xml:"title"`
		StockTickers    string `xml:"stock_tickers"`
	} `xml:"news"`
	Image *struct {
		Loc string `xml:"loc"`
	} `xml:"image"`
}

func (s *SitemapSource) parse(data []byte) ([]news.Item, error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sitemap parse: %w", err)
	}

	items := make([]news.Item, 0, len(doc.URLs))
	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" || u.News == nil {
			continue
		}
		published, err := parseTimestamp(u.News.PublicationDate)
		if err != nil {
			s.log.Warn("sitemap entry skipped: bad publication date",
				logx.String("loc", loc), logx.Err(err))
			continue
		}

		it := news.Item{
			GUID:        loc,
			Title:       strings.TrimSpace(u.News.Title),
			Link:        loc,
			PublishedAt: published,
			Tickers:     strings.TrimSpace(u.News.StockTickers),
			Source:      news.SourceSitemap,
		}
		if u.Image != nil {
			it.MediaURL = strings.TrimSpace(u.Image.Loc)
		}
		items = append(items, it)
	}
	return items, nil
}
