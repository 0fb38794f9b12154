// internal/config/validation.go - validation with detailed error messages
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/valpere/MediaScrapexter/internal/media"
)

// ValidationError represents a detailed validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Value != "" {
		return fmt.Sprintf("%s: %s (value: %s)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

func (r *ValidationResult) addError(field, value, format string, args ...interface{}) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidationErrors is returned by Validate when at least one check fails.
type ValidationErrors struct {
	Result *ValidationResult
}

func (e *ValidationErrors) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Result.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return strings.TrimRight(b.String(), "\n")
}

// Validate checks the configuration and returns *ValidationErrors on failure.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateService is Validate without the requirement for at least one URL.
func (c *Config) ValidateService() error {
	return c.validate(false)
}

func (c *Config) validate(requireURLs bool) error {
	result := c.ValidateWithDetails()
	if !requireURLs {
		kept := result.Errors[:0]
		for _, e := range result.Errors {
			if e.Field != "urls" {
				kept = append(kept, e)
			}
		}
		result.Errors = kept
		result.Valid = len(kept) == 0
	}
	if !result.Valid {
		return &ValidationErrors{Result: result}
	}
	return nil
}

// ValidateWithDetails runs every check and reports errors and warnings.
func (c *Config) ValidateWithDetails() *ValidationResult {
	result := &ValidationResult{
		Errors:   make([]ValidationError, 0),
		Warnings: make([]string, 0),
	}

	c.validateBasicFields(result)
	c.validateURLs(result)
	c.validateScraper(result)
	c.validateStorage(result)
	c.validateOutput(result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateBasicFields(result *ValidationResult) {
	if strings.TrimSpace(c.Name) == "" {
		result.addError("name", "", "scraper name is required")
	}
	if c.Concurrency < 1 {
		result.addError("concurrency", fmt.Sprint(c.Concurrency), "concurrency must be at least 1")
	} else if c.Concurrency > 32 {
		result.addWarning("concurrency above 32 may overwhelm target servers")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.addError("log_level", c.LogLevel, "log level must be one of debug, info, warn, error")
	}
	if c.BatchSize < 1 {
		result.addError("batch_size", fmt.Sprint(c.BatchSize), "batch size must be at least 1")
	}
	switch c.OnError.Mode {
	case "continue", "stop":
	default:
		result.addError("on_error.mode", c.OnError.Mode, "on_error mode must be continue or stop")
	}
	if c.OnError.MaxErrorRate < 0 || c.OnError.MaxErrorRate > 1 {
		result.addError("on_error.max_error_rate", fmt.Sprint(c.OnError.MaxErrorRate), "max error rate must be between 0 and 1")
	}
	if c.Server.RateLimit < 0 {
		result.addError("server.rate_limit", fmt.Sprint(c.Server.RateLimit), "rate limit cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		result.addError("metrics.address", "", "metrics address is required when metrics are enabled")
	}
}

func (c *Config) validateURLs(result *ValidationResult) {
	if len(c.URLs) == 0 && c.URLsFile == "" {
		result.addError("urls", "", "at least one URL or a urls_file is required")
	}
	for i, raw := range c.URLs {
		field := fmt.Sprintf("urls[%d]", i)
		parsed, err := url.Parse(raw)
		if err != nil {
			result.addError(field, raw, "invalid URL format: %v", err)
			continue
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			result.addError(field, raw, "URL must include protocol (http:// or https://)")
		}
		if parsed.Host == "" {
			result.addError(field, raw, "URL must include hostname")
		}
	}
}

func (c *Config) validateScraper(result *ValidationResult) {
	s := c.Scraper
	switch s.Mode {
	case ModeHTTP, ModeBrowser:
	default:
		// Unknown modes fall back to http at runtime.
		result.addWarning("unknown scraper mode %q, http will be used", s.Mode)
	}
	if s.Timeout < 0 {
		result.addError("scraper.timeout", s.Timeout.String(), "timeout cannot be negative")
	} else if s.Timeout > 120*time.Second {
		result.addWarning("timeout above 120 seconds may cause unnecessary delays")
	}
	if s.RetryAttempts < 0 {
		result.addError("scraper.retry_attempts", fmt.Sprint(s.RetryAttempts), "retry attempts cannot be negative")
	}
	if s.Delay < 0 {
		result.addError("scraper.delay", s.Delay.String(), "delay cannot be negative")
	}
	if s.Proxy != "" {
		if u, err := url.Parse(s.Proxy); err != nil || u.Host == "" {
			result.addError("scraper.proxy", s.Proxy, "proxy must be a URL such as http://host:port")
		}
	}
	for i, raw := range s.ProxyPool.URLs {
		if u, err := url.Parse(raw); err != nil || u.Host == "" || !contains([]string{"http", "https", "socks5"}, u.Scheme) {
			result.addError(fmt.Sprintf("scraper.proxy_pool.urls[%d]", i), raw, "proxy must be an http, https or socks5 URL")
		}
	}
	switch s.ProxyPool.Rotation {
	case "", "round_robin", "random":
	default:
		result.addError("scraper.proxy_pool.rotation", s.ProxyPool.Rotation, "rotation must be round_robin or random")
	}
	if len(s.ProxyPool.URLs) > 0 && s.Mode == ModeBrowser {
		result.addWarning("scraper.proxy_pool applies to http mode only; browser mode uses scraper.proxy")
	}
	if !s.TLSVerify() {
		result.addWarning("TLS verification is disabled")
	}
	for name, selector := range s.Selectors {
		field := fmt.Sprintf("scraper.selectors.%s", name)
		if strings.TrimSpace(selector) == "" {
			result.addError(field, "", "CSS selector is required")
			continue
		}
		css := selector
		if i := strings.LastIndex(selector, "@"); i > 0 && !strings.ContainsAny(selector[i+1:], " []=\"'") {
			css = selector[:i]
		}
		if _, err := cascadia.ParseGroup(css); err != nil {
			result.addError(field, selector, "invalid CSS selector: %v", err)
		}
	}
	for name, rules := range s.Transforms {
		for i, rule := range rules {
			field := fmt.Sprintf("scraper.transforms.%s[%d]", name, i)
			switch rule.Type {
			case "trim", "normalize_spaces", "lowercase", "uppercase", "remove_html",
				"extract_numbers", "parse_int", "parse_float":
			case "regex":
				if _, err := regexp.Compile(rule.Pattern); err != nil {
					result.addError(field, rule.Pattern, "invalid regex pattern: %v", err)
				}
			default:
				result.addError(field, rule.Type, "unknown transform type")
			}
		}
	}
	if s.Browser.WaitSelector != "" {
		if _, err := cascadia.ParseGroup(s.Browser.WaitSelector); err != nil {
			result.addError("scraper.browser.wait_selector", s.Browser.WaitSelector, "invalid CSS selector: %v", err)
		}
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	st := c.Storage
	if st.DownloadEnabled() && strings.TrimSpace(st.MediaRoot) == "" {
		result.addError("storage.media_root", "", "media root is required when download_media is enabled")
	}
	if st.MaxFileSize <= 0 {
		result.addError("storage.max_file_size", fmt.Sprint(st.MaxFileSize), "max file size must be a positive number of megabytes")
	}
	for category, exts := range st.MediaTypes {
		if _, err := media.ParseCategory(category); err != nil {
			result.addError("storage.media_types", category, "%v", err)
			continue
		}
		if len(exts) == 0 {
			result.addWarning("media type %q has no extensions", category)
		}
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	o := c.Output
	if !contains(OutputFormats(), o.Format) {
		result.addError("output.format", o.Format, "invalid output format. Valid formats: %s", strings.Join(OutputFormats(), ", "))
		return
	}
	if o.Fallback != "" && !contains([]string{FormatJSON, FormatJSONL, FormatCSV}, o.Fallback) {
		result.addError("output.fallback", o.Fallback, "fallback must be a file format (json, jsonl, csv)")
	}
	switch o.Format {
	case FormatPostgreSQL, FormatMySQL, FormatMongoDB:
		if o.DSN == "" {
			result.addError("output.dsn", "", "a connection string is required for %s output", o.Format)
		}
	case FormatJSON, FormatJSONL, FormatCSV, FormatExcel, FormatSQLite:
		if o.Path == "" {
			result.addError("output.path", "", "an output path is required for %s output", o.Format)
		}
	}
	if o.Format == FormatMongoDB && o.Database == "" {
		result.addError("output.database", "", "a database name is required for mongodb output")
	}
}

// OutputFormats lists the supported output formats.
func OutputFormats() []string {
	return []string{FormatJSON, FormatJSONL, FormatCSV, FormatSQLite, FormatPostgreSQL, FormatMySQL, FormatMongoDB, FormatExcel}
}

// GetValidationSuggestions provides actionable suggestions for fixing validation errors
func GetValidationSuggestions(result *ValidationResult) []string {
	suggestions := make([]string, 0)

	var hasURLError, hasSelectorError, hasStorageError, hasOutputError bool
	for _, err := range result.Errors {
		switch {
		case strings.HasPrefix(err.Field, "urls"):
			hasURLError = true
		case strings.Contains(err.Field, "selector"):
			hasSelectorError = true
		case strings.HasPrefix(err.Field, "storage"):
			hasStorageError = true
		case strings.HasPrefix(err.Field, "output"):
			hasOutputError = true
		}
	}

	if hasURLError {
		suggestions = append(suggestions,
			"Ensure URLs include protocol (http:// or https://)",
			"Use urls_file for long URL lists")
	}
	if hasSelectorError {
		suggestions = append(suggestions,
			"Test CSS selectors using browser developer tools")
	}
	if hasStorageError {
		suggestions = append(suggestions,
			"Set storage.media_root to a writable directory",
			"Use category names images, videos, audio, documents or other in media_types")
	}
	if hasOutputError {
		suggestions = append(suggestions,
			"Database outputs need output.dsn; file outputs need output.path")
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions,
			"Review the configuration file for syntax errors",
			"Check YAML indentation and formatting")
	}
	return suggestions
}

// Helper function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
