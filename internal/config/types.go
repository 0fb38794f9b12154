// internal/config/types.go

// Package config provides configuration types and loading for MediaScrapexter.
// A configuration describes which pages to fetch, how to fetch them, where
// media is stored and which backend receives page records.
package config

import (
	"time"
)

// Fetch modes understood by the scraper registry.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// Output formats understood by the output factory.
const (
	FormatJSON       = "json"
	FormatJSONL      = "jsonl"
	FormatCSV        = "csv"
	FormatSQLite     = "sqlite"
	FormatPostgreSQL = "postgresql"
	FormatMySQL      = "mysql"
	FormatMongoDB    = "mongodb"
	FormatExcel      = "excel"
)

// Config represents the main configuration for a scraping job.
type Config struct {
	// Name identifies this configuration
	Name string `yaml:"name" json:"name"`

	// URLs to scrape, in order
	URLs []string `yaml:"urls,omitempty" json:"urls,omitempty"`

	// URLsFile names a file with one URL per line; '#' starts a comment
	URLsFile string `yaml:"urls_file,omitempty" json:"urls_file,omitempty"`

	Scraper ScraperConfig `yaml:"scraper" json:"scraper"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Output  OutputConfig  `yaml:"output" json:"output"`

	// Concurrency is the number of pages processed in parallel
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// BatchSize is the number of records buffered before each save
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	OnError ErrorPolicyConfig `yaml:"on_error" json:"on_error"`

	LogLevel string        `yaml:"log_level" json:"log_level"`
	Metrics  MetricsConfig `yaml:"metrics" json:"metrics"`
	Server   ServerConfig  `yaml:"server" json:"server"`
}

// ScraperConfig controls how pages are fetched.
type ScraperConfig struct {
	// Mode selects the fetch strategy (http, browser)
	Mode string `yaml:"mode" json:"mode"`

	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// Delay between page requests; a ±20% jitter is applied
	Delay time.Duration `yaml:"delay" json:"delay"`

	UserAgents []string          `yaml:"user_agents,omitempty" json:"user_agents,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Cookies    map[string]string `yaml:"cookies,omitempty" json:"cookies,omitempty"`
	Proxy      string            `yaml:"proxy,omitempty" json:"proxy,omitempty"`

	// ProxyPool rotates http-mode page requests across several proxies; it
	// takes precedence over Proxy
	ProxyPool ProxyPoolConfig `yaml:"proxy_pool,omitempty" json:"proxy_pool,omitempty"`

	// VerifyTLS defaults to true; set to false only for hosts with broken certificates
	VerifyTLS *bool `yaml:"verify_tls,omitempty" json:"verify_tls,omitempty"`

	// Selectors maps field names to CSS selectors
	Selectors map[string]string `yaml:"selectors,omitempty" json:"selectors,omitempty"`

	// Transforms post-process selector values, applied in order per field
	Transforms map[string][]TransformRule `yaml:"transforms,omitempty" json:"transforms,omitempty"`

	Browser BrowserConfig `yaml:"browser" json:"browser"`
}

// TLSVerify reports the effective TLS verification setting.
func (s ScraperConfig) TLSVerify() bool {
	return s.VerifyTLS == nil || *s.VerifyTLS
}

// ProxyPoolConfig lists proxies and how they are rotated.
type ProxyPoolConfig struct {
	URLs []string `yaml:"urls,omitempty" json:"urls,omitempty"`

	// Rotation is round_robin or random
	Rotation string `yaml:"rotation,omitempty" json:"rotation,omitempty"`

	// FailureThreshold consecutive failures take a proxy out of rotation
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`

	// RecoveryTime before a benched proxy is tried again
	RecoveryTime time.Duration `yaml:"recovery_time,omitempty" json:"recovery_time,omitempty"`
}

// TransformRule is one step applied to an extracted field value.
type TransformRule struct {
	// Type is one of trim, normalize_spaces, lowercase, uppercase, remove_html,
	// regex, extract_numbers, parse_int, parse_float
	Type        string `yaml:"type" json:"type"`
	Pattern     string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Replacement string `yaml:"replacement,omitempty" json:"replacement,omitempty"`
}

// BrowserConfig defines headless browser settings.
type BrowserConfig struct {
	Headless       *bool         `yaml:"headless,omitempty" json:"headless,omitempty"`
	WaitSelector   string        `yaml:"wait_selector,omitempty" json:"wait_selector,omitempty"`
	WaitDelay      time.Duration `yaml:"wait_delay" json:"wait_delay"`
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	UserAgent      string        `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	ExecPath       string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	DisableImages  bool          `yaml:"disable_images" json:"disable_images"`
}

// IsHeadless reports the effective headless setting, which defaults to true.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// StorageConfig controls media acquisition.
type StorageConfig struct {
	// MediaRoot is the directory media files are written under
	MediaRoot string `yaml:"media_root" json:"media_root"`

	// MaxFileSize is the per-item ceiling in megabytes
	MaxFileSize int `yaml:"max_file_size" json:"max_file_size"`

	// MediaTypes maps a category to its extensions; empty uses built-in defaults
	MediaTypes map[string][]string `yaml:"media_types,omitempty" json:"media_types,omitempty"`

	// DownloadMedia defaults to true
	DownloadMedia *bool `yaml:"download_media,omitempty" json:"download_media,omitempty"`

	// Timeout for a single media request
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DownloadEnabled reports the effective download_media setting.
func (s StorageConfig) DownloadEnabled() bool {
	return s.DownloadMedia == nil || *s.DownloadMedia
}

// MaxFileSizeBytes returns the ceiling in bytes.
func (s StorageConfig) MaxFileSizeBytes() int64 {
	return int64(s.MaxFileSize) * 1024 * 1024
}

// OutputConfig selects and configures the record backend.
type OutputConfig struct {
	// Format of the output (json, jsonl, csv, sqlite, postgresql, mysql, mongodb, excel)
	Format string `yaml:"format" json:"format"`

	// Path of the output file for file-based formats and sqlite
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// DSN for postgresql and mysql, URI for mongodb
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// Database name for mongodb
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Table or collection name
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	// Fallback format used when the configured backend cannot be opened
	Fallback string `yaml:"fallback,omitempty" json:"fallback,omitempty"`

	// Pretty prints JSON output
	Pretty bool `yaml:"pretty" json:"pretty"`
}

// ErrorPolicyConfig decides when page failures abort a run.
type ErrorPolicyConfig struct {
	// Mode is "continue" or "stop"
	Mode string `yaml:"mode" json:"mode"`

	// MaxErrorRate aborts a run once failed/processed exceeds it; 0 disables
	MaxErrorRate float64 `yaml:"max_error_rate,omitempty" json:"max_error_rate,omitempty"`

	// MinSample is the number of pages processed before MaxErrorRate applies
	MinSample int `yaml:"min_sample,omitempty" json:"min_sample,omitempty"`
}

// MetricsConfig defines the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ServerConfig defines the HTTP API used by the serve command.
type ServerConfig struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// APIKey, when set, is required as a bearer token on /api routes
	APIKey string `yaml:"api_key,omitempty" json:"-"`

	// RateLimit is requests per second accepted on /api routes; 0 disables
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`

	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64 `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty"`
}

// BoolPtr returns a pointer to v, for optional boolean settings.
func BoolPtr(v bool) *bool {
	return &v
}
