package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"newswire/internal/news"
	logx "newswire/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// publishedLayout is fixed-width (UTC, padded nanoseconds) so that
// lexicographic ORDER BY on the TEXT column is chronological order.
// RFC3339Nano would trim trailing zeros and break that for rows with
// mixed sub-second precision.
const publishedLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the sqlite store, creating the file and schema if needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertItems(ctx context.Context, items []news.Item) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO news(guid, title, description, link, published, stock_tickers, media_url, source)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(guid) DO UPDATE SET
		     title         = excluded.title,
		     description   = excluded.description,
		     link          = excluded.link,
		     published     = excluded.published,
		     stock_tickers = excluded.stock_tickers,
		     media_url     = excluded.media_url,
		     source        = excluded.source`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		_, err := stmt.ExecContext(ctx,
			it.GUID, it.Title, it.Description, it.Link,
			it.PublishedAt.UTC().Format(publishedLayout),
			it.Tickers, it.MediaURL, string(it.Source),
		)
		if err != nil {
			return fmt.Errorf("upsert %q: %w", it.GUID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Exists(ctx context.Context, guid string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news WHERE guid = ?`, guid).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news`).Scan(&n)
	return n, err
}

func (s *sqliteStore) HistoryPage(ctx context.Context, offset, limit int) ([]news.Item, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return []news.Item{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT guid, title, description, link, published, stock_tickers, media_url, source
		 FROM news
		 ORDER BY published DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]news.Item, 0, limit)
	for rows.Next() {
		var (
			it     news.Item
			pub    string
			source string
		)
		if err := rows.Scan(&it.GUID, &it.Title, &it.Description, &it.Link, &pub, &it.Tickers, &it.MediaURL, &source); err != nil {
			return nil, err
		}
		t, err := time.Parse(publishedLayout, pub)
		if err != nil {
			// Rows written before the fixed-width layout.
			t, err = time.Parse(time.RFC3339Nano, pub)
		}
		if err != nil {
			// A malformed row should not poison the whole page.
			s.log.Warn("history row skipped: bad published timestamp",
				logx.String("guid", it.GUID), logx.Err(err))
			continue
		}
		it.PublishedAt = t
		it.Source = news.SourceKind(source)
		items = append(items, it)
	}
	return items, rows.Err()
}
