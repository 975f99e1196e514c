package config

// Config is the root configuration document (yaml).
//
// Durations are strings in Go duration syntax ("20s", "5m") so the file stays
// readable and hot reload can reject bad values before applying them.
type Config struct {
	Telegram    TelegramConfig    `yaml:"telegram"`
	Logging     LoggingConfig     `yaml:"logging"`
	Market      MarketConfig      `yaml:"market"`
	Downloader  DownloaderConfig  `yaml:"downloader"`
	Updates     UpdatesConfig     `yaml:"updates"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Storage     StorageConfig     `yaml:"storage"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type TelegramConfig struct {
	// Token can be left empty in the file and provided via the BOT_TOKEN env var.
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string     `yaml:"level"`
	Console bool       `yaml:"console"`
	File    FileConfig `yaml:"file"`
}

type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MarketConfig struct {
	// BaseURL points at the markets endpoint; tests override it with httptest.
	BaseURL       string `yaml:"base_url"`
	QuoteCurrency string `yaml:"quote_currency"`
	Timeout       string `yaml:"timeout"`
}

type DownloaderConfig struct {
	// Binary is the yt-dlp executable name or path.
	Binary  string `yaml:"binary"`
	Dir     string `yaml:"dir"`
	Timeout string `yaml:"timeout"`
}

type UpdatesConfig struct {
	// InitialDelay is the delay before the first scheduled tick after enabling.
	InitialDelay string `yaml:"initial_delay"`
}

type NotifierConfig struct {
	RatePerSec int    `yaml:"rate_per_sec"`
	QueueSize  int    `yaml:"queue_size"`
	Workers    int    `yaml:"workers"`
	RetryMax   int    `yaml:"retry_max"`
	RetryBase  string `yaml:"retry_base"`
}

type StorageConfig struct {
	// Driver: "" or "none" disables storage; "sqlite" enables it.
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled"`
	// SweepSpec is a cron spec or descriptor ("@every 30m").
	SweepSpec      string `yaml:"sweep_spec"`
	TempMaxAge     string `yaml:"temp_max_age"`
	AuditRetention string `yaml:"audit_retention"`
}
