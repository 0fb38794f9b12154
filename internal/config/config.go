// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/MediaScrapexter/internal/media"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	return loadFile(filename, true)
}

// LoadServiceFile loads a configuration for the serve command, where URLs
// arrive with each request and the urls list may be empty.
func LoadServiceFile(filename string) (*Config, error) {
	return loadFile(filename, false)
}

func loadFile(filename string, requireURLs bool) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewError(utils.ErrCodeMissingConfig, "configuration file not found").
				WithContext("path", filename).
				WithUserMessage(fmt.Sprintf("The configuration file %s does not exist.", filename)).
				Build()
		}
		return nil, utils.WrapError(err, utils.ErrCodeInvalidConfig, "failed to read configuration file")
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	// A relative urls_file is resolved against the config file's directory.
	if cfg.URLsFile != "" && !filepath.IsAbs(cfg.URLsFile) {
		cfg.URLsFile = filepath.Join(filepath.Dir(filename), cfg.URLsFile)
	}

	if err := cfg.validate(requireURLs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes loads configuration from YAML bytes
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader loads configuration from an io.Reader
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %w", err)
	}
	return LoadFromBytes(data)
}

func parse(data []byte) (*Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, utils.WrapError(err, utils.ErrCodeConfigSyntax, "failed to parse YAML configuration")
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// SaveToWriter writes the configuration as YAML.
func SaveToWriter(cfg *Config, writer io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if writer == nil {
		return fmt.Errorf("writer cannot be nil")
	}

	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}
	return enc.Close()
}

// SaveToFile writes the configuration to filename, creating its directory.
func SaveToFile(cfg *Config, filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filename, err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	defer f.Close()
	return SaveToWriter(cfg, f)
}

// ResolveURLs returns the configured URLs followed by those in URLsFile,
// with duplicates removed. URLs differing only in host case, default port
// or fragment count as duplicates; the first spelling is kept.
func (c *Config) ResolveURLs() ([]string, error) {
	urls := append([]string(nil), c.URLs...)
	if c.URLsFile != "" {
		fromFile, err := utils.LoadURLFile(c.URLsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read urls_file: %w", err)
		}
		urls = append(urls, fromFile...)
	}

	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		key, err := utils.NormalizeURL(u)
		if err != nil {
			key = u
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out, nil
}

// ExtensionTable builds the media extension table from storage.media_types,
// or the built-in table when none is configured.
func (c *Config) ExtensionTable() (media.ExtensionTable, error) {
	if len(c.Storage.MediaTypes) == 0 {
		return media.DefaultExtensionTable(), nil
	}
	groups := make(map[media.Category][]string, len(c.Storage.MediaTypes))
	for name, exts := range c.Storage.MediaTypes {
		cat, err := media.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		groups[cat] = exts
	}
	return media.NewExtensionTable(groups), nil
}

// FetcherConfig derives the media fetcher settings.
func (c *Config) FetcherConfig() media.FetcherConfig {
	fc := media.DefaultFetcherConfig()
	fc.MaxBytes = c.Storage.MaxFileSizeBytes()
	fc.Timeout = c.Storage.Timeout
	fc.InsecureSkipVerify = !c.Scraper.TLSVerify()
	if len(c.Scraper.UserAgents) > 0 {
		fc.UserAgent = c.Scraper.UserAgents[0]
	}
	return fc
}

// Default returns a configuration with every default applied and no URLs.
func Default(name string) *Config {
	cfg := &Config{Name: name}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults applies default values to the configuration
func applyDefaults(cfg *Config) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.OnError.Mode == "" {
		cfg.OnError.Mode = "continue"
	}
	if cfg.OnError.MinSample == 0 {
		cfg.OnError.MinSample = 10
	}

	s := &cfg.Scraper
	if s.Mode == "" {
		s.Mode = ModeHTTP
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.RetryAttempts == 0 {
		s.RetryAttempts = 3
	}
	if s.RetryDelay == 0 {
		s.RetryDelay = time.Second
	}
	if s.Browser.ViewportWidth == 0 {
		s.Browser.ViewportWidth = 1920
	}
	if s.Browser.ViewportHeight == 0 {
		s.Browser.ViewportHeight = 1080
	}

	st := &cfg.Storage
	if st.MediaRoot == "" {
		st.MediaRoot = "media"
	}
	if st.MaxFileSize == 0 {
		st.MaxFileSize = 100
	}
	if st.Timeout == 0 {
		st.Timeout = 30 * time.Second
	}

	o := &cfg.Output
	if o.Format == "" {
		o.Format = FormatJSON
	}
	if o.Fallback == "" {
		o.Fallback = FormatCSV
	}
	if o.Table == "" {
		o.Table = "pages"
	}
	if o.Path == "" {
		switch o.Format {
		case FormatJSON:
			o.Path = "output.json"
		case FormatJSONL:
			o.Path = "output.jsonl"
		case FormatCSV:
			o.Path = "output.csv"
		case FormatExcel:
			o.Path = "output.xlsx"
		case FormatSQLite:
			o.Path = "output.db"
		}
	}

	srv := &cfg.Server
	if srv.Address == "" {
		srv.Address = ":8080"
	}
	if srv.RateLimit > 0 && srv.Burst == 0 {
		srv.Burst = int(srv.RateLimit) + 1
	}
	if srv.MaxBodyBytes == 0 {
		srv.MaxBodyBytes = 10 * 1024 * 1024
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Address == "" {
			cfg.Metrics.Address = ":9090"
		}
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
	}
}

// TemplateTypes lists the names accepted by GenerateTemplate.
func TemplateTypes() []string {
	return []string{"basic", "news", "gallery", "browser"}
}

// GenerateTemplate generates a template configuration for the specified type
func GenerateTemplate(templateType string) Config {
	var cfg Config
	switch strings.ToLower(templateType) {
	case "news":
		cfg = generateNewsTemplate()
	case "gallery":
		cfg = generateGalleryTemplate()
	case "browser":
		cfg = generateBrowserTemplate()
	default:
		cfg = generateBasicTemplate()
	}
	applyDefaults(&cfg)
	return cfg
}

func generateBasicTemplate() Config {
	return Config{
		Name: "basic_scraper",
		URLs: []string{"https://example.com"},
		Scraper: ScraperConfig{
			Mode:      ModeHTTP,
			Delay:     time.Second,
			Selectors: map[string]string{"title": "h1", "description": "meta[name=description]"},
		},
		Storage: StorageConfig{
			MediaRoot:   "media",
			MaxFileSize: 100,
		},
		Output: OutputConfig{Format: FormatJSON, Path: "output.json", Pretty: true},
	}
}

func generateNewsTemplate() Config {
	return Config{
		Name:     "news_scraper",
		URLsFile: "urls.txt",
		Scraper: ScraperConfig{
			Mode:  ModeHTTP,
			Delay: 2 * time.Second,
			Selectors: map[string]string{
				"headline": "h1, .headline",
				"author":   ".author, .byline",
				"content":  "article p",
			},
		},
		Storage: StorageConfig{
			MediaRoot:   "media/news",
			MaxFileSize: 50,
			MediaTypes: map[string][]string{
				"images": {".jpg", ".jpeg", ".png", ".webp"},
				"videos": {".mp4", ".webm"},
			},
		},
		Output:      OutputConfig{Format: FormatSQLite, Path: "news.db"},
		Concurrency: 2,
	}
}

func generateGalleryTemplate() Config {
	return Config{
		Name: "gallery_scraper",
		URLs: []string{"https://gallery.example.com/albums/1"},
		Scraper: ScraperConfig{
			Mode:       ModeHTTP,
			Delay:      500 * time.Millisecond,
			UserAgents: []string{media.DefaultUserAgent},
		},
		Storage: StorageConfig{
			MediaRoot:   "media/gallery",
			MaxFileSize: 200,
		},
		Output:      OutputConfig{Format: FormatCSV, Path: "gallery.csv"},
		Concurrency: 4,
	}
}

func generateBrowserTemplate() Config {
	return Config{
		Name: "browser_scraper",
		URLs: []string{"https://app.example.com/feed"},
		Scraper: ScraperConfig{
			Mode:    ModeBrowser,
			Timeout: 45 * time.Second,
			Browser: BrowserConfig{
				WaitSelector: "main",
				WaitDelay:    2 * time.Second,
			},
			Selectors: map[string]string{"title": "title"},
		},
		Storage: StorageConfig{
			MediaRoot:   "media",
			MaxFileSize: 100,
		},
		Output: OutputConfig{Format: FormatJSON, Path: "browser_output.json", Pretty: true},
	}
}
