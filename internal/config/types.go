package config

// Config is the top-level configuration shared by both binaries.
// Each binary validates only the sections it actually uses.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	Server ServerConfig `json:"server,omitempty"`
	Relay  RelayConfig  `json:"relay,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServerConfig configures the ingestion + broadcast server.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type ServerConfig struct {
	// Listen is the websocket listen address, e.g. "localhost:8765".
	Listen string `json:"listen"`

	Feeds   FeedsConfig   `json:"feeds"`
	Storage StorageConfig `json:"storage"`

	// FetchInterval is the ingestion cycle period. Default "60s".
	FetchInterval string `json:"fetch_interval,omitempty"`

	// CacheSize bounds the in-memory window of recent items. Default 1000.
	CacheSize int `json:"cache_size,omitempty"`

	// PageSize is the history page size handed to subscribers. Default 100.
	PageSize int `json:"page_size,omitempty"`
}

type FeedsConfig struct {
	// SitemapURL points at a Google news-sitemap XML document.
	SitemapURL string `json:"sitemap_url,omitempty"`
	// RSSURLs lists plain RSS/Atom feeds.
	RSSURLs []string `json:"rss_urls,omitempty"`
	// FetchTimeout bounds one feed fetch. Default "10s".
	FetchTimeout string `json:"fetch_timeout,omitempty"`
}

type StorageConfig struct {
	// Path is the sqlite database file. Required for the server.
	Path string `json:"path"`
	// BusyTimeout is a Go duration string. Default "5s".
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RelayConfig configures the subscriber that pushes items to Telegram.
type RelayConfig struct {
	// Endpoint is the broadcast server websocket URL, e.g. "ws://localhost:8765".
	Endpoint string `json:"endpoint"`

	// ReconnectBase / ReconnectMax shape the dial backoff. Defaults "10s" / "5m".
	ReconnectBase string `json:"reconnect_base,omitempty"`
	ReconnectMax  string `json:"reconnect_max,omitempty"`

	Telegram  TelegramConfig  `json:"telegram"`
	Translate TranslateConfig `json:"translate,omitempty"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// TranslateConfig selects the optional translator.
//
// Provider values:
//   - "": translation disabled
//   - "openai": chat-completion translation (api_key, model, optional base_url)
//   - "workflow": HTTP workflow endpoint (endpoint, api_key)
type TranslateConfig struct {
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	// Target is the translation target language. Default "Chinese".
	Target string `json:"target,omitempty"`
	// Timeout bounds one translate call. Default "30s".
	Timeout string `json:"timeout,omitempty"`
}

// DeliveryConfig tunes the rate-limited Telegram sender.
type DeliveryConfig struct {
	// Workers bounds concurrent in-flight sends. Default 5.
	Workers int `json:"workers,omitempty"`
	// QueueSize bounds queued items before drops. Default 256.
	QueueSize int `json:"queue_size,omitempty"`
	// RateLimit is the minimum spacing between sends. Default "1.2s".
	RateLimit string `json:"rate_limit,omitempty"`
	// RetryMax is the attempt budget per item. Default 3.
	RetryMax int `json:"retry_max,omitempty"`
}
