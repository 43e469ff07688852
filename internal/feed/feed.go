// Package feed implements the news sources the ingestion pipeline pulls
// from: Google news-sitemap documents and plain RSS/Atom feeds. Both
// normalize into news.Item; entries without a parsable publication date
// are skipped, never fatal.
package feed

import (
	"net/http"
	"strings"
	"time"
)

const DefaultFetchTimeout = 10 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &http.Client{Timeout: timeout}
}

// parseTimestamp accepts the date shapes observed across news sitemaps.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02T15:04:05Z0700",
		"2006-01-02",
	}
	var lastErr error
	for _, l := range layouts {
		t, err := time.Parse(l, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
