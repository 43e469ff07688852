// Package translate augments news items with machine-translated titles and
// descriptions. Enrichment is best-effort by contract: any translator
// failure degrades to the original item, it is never surfaced as an error
// to the delivery path.
package translate

import (
	"context"
	"time"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

const DefaultTimeout = 30 * time.Second

// Translation is a successful translator result. Empty fields mean the
// translator had nothing for that part.
type Translation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Translator converts a title/description pair into the target language.
// A nil result with a nil error is a valid miss.
type Translator interface {
	Translate(ctx context.Context, title, description string) (*Translation, error)
}

// Enricher applies a Translator to items with a bounded timeout.
type Enricher struct {
	tr      Translator
	timeout time.Duration
	log     logx.Logger
}

func NewEnricher(tr Translator, timeout time.Duration, log logx.Logger) *Enricher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Enricher{tr: tr, timeout: timeout, log: log}
}

// Enrich returns a copy of the item with translated fields populated when
// the translator succeeds, or the item unchanged on any failure or miss.
// The stored record is never mutated.
func (e *Enricher) Enrich(ctx context.Context, it news.Item) news.Item {
	if e == nil || e.tr == nil {
		return it
	}

	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.tr.Translate(tctx, it.Title, it.Description)
	if err != nil {
		e.log.Warn("translation failed; delivering original", logx.String("guid", it.GUID), logx.Err(err))
		return it
	}
	if res == nil {
		e.log.Debug("translation miss", logx.String("guid", it.GUID))
		return it
	}

	out := it
	out.TranslatedTitle = res.Title
	out.TranslatedDescription = res.Description
	return out
}
