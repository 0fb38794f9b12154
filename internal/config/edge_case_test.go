// internal/config/edge_case_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytesEdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError bool
		errorMsg    string
	}{
		{name: "empty", content: "", expectError: true, errorMsg: "cannot be empty"},
		{name: "whitespace only", content: "  \n\t", expectError: true, errorMsg: "cannot be empty"},
		{name: "invalid yaml", content: "name: [unclosed", expectError: true, errorMsg: "failed to parse YAML"},
		{name: "no urls", content: "name: x", expectError: true, errorMsg: "urls"},
		{name: "unicode name", content: "name: \"скрапер_测试\"\nurls: [\"https://example.com\"]"},
		{name: "relative url", content: "name: x\nurls: [\"/path\"]", expectError: true, errorMsg: "protocol"},
		{name: "ftp url", content: "name: x\nurls: [\"ftp://example.com\"]", expectError: true, errorMsg: "protocol"},
		{name: "negative retries", content: "name: x\nurls: [\"https://e.com\"]\nscraper:\n  retry_attempts: -1", expectError: true, errorMsg: "retry attempts"},
		{name: "bad selector", content: "name: x\nurls: [\"https://e.com\"]\nscraper:\n  selectors:\n    t: \"div[\"", expectError: true, errorMsg: "invalid CSS selector"},
		{name: "bad category", content: "name: x\nurls: [\"https://e.com\"]\nstorage:\n  media_types:\n    pictures: [jpg]", expectError: true, errorMsg: "unknown media category"},
		{name: "bad output", content: "name: x\nurls: [\"https://e.com\"]\noutput:\n  format: xml", expectError: true, errorMsg: "invalid output format"},
		{name: "database without dsn", content: "name: x\nurls: [\"https://e.com\"]\noutput:\n  format: mysql", expectError: true, errorMsg: "connection string"},
		{name: "mongodb without database", content: "name: x\nurls: [\"https://e.com\"]\noutput:\n  format: mongodb\n  dsn: mongodb://localhost", expectError: true, errorMsg: "database name"},
		{name: "bad log level", content: "name: x\nurls: [\"https://e.com\"]\nlog_level: loud", expectError: true, errorMsg: "log level"},
		{name: "bad duration", content: "name: x\nurls: [\"https://e.com\"]\nscraper:\n  timeout: soon", expectError: true, errorMsg: "failed to parse YAML"},
		{name: "unknown mode warns only", content: "name: x\nurls: [\"https://e.com\"]\nscraper:\n  mode: selenium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.content))
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		URLs:        []string{"not a url", "https://ok.example.com"},
		Concurrency: 0,
		LogLevel:    "info",
		Storage:     StorageConfig{MediaRoot: "", MaxFileSize: -1},
		Output:      OutputConfig{Format: FormatJSON, Path: "x.json"},
	}

	err := cfg.Validate()
	var verr *ValidationErrors
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Result.Errors))
	for _, e := range verr.Result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "concurrency")
	assert.Contains(t, fields, "urls[0]")
	assert.Contains(t, fields, "storage.media_root")
	assert.Contains(t, fields, "storage.max_file_size")
	assert.Contains(t, fields, "on_error.mode")
	assert.NotContains(t, fields, "urls[1]")

	suggestions := GetValidationSuggestions(verr.Result)
	assert.NotEmpty(t, suggestions)
}

func TestValidateWarnings(t *testing.T) {
	cfg := GenerateTemplate("basic")
	cfg.Scraper.VerifyTLS = BoolPtr(false)
	cfg.Scraper.Timeout = 5 * time.Minute

	result := cfg.ValidateWithDetails()
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 2)
}

func TestEnvironmentExpansion(t *testing.T) {
	t.Setenv("MEDIA_DIR", "/data/media")
	t.Setenv("TARGET", "https://env.example.com")

	cfg, err := LoadFromBytes([]byte("name: env\nurls: [\"${TARGET}\"]\nstorage:\n  media_root: $MEDIA_DIR\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/media", cfg.Storage.MediaRoot)
	assert.Equal(t, []string{"https://env.example.com"}, cfg.URLs)
}

func TestResolveURLsMissingFile(t *testing.T) {
	cfg := &Config{URLsFile: filepath.Join(t.TempDir(), "missing.txt")}
	_, err := cfg.ResolveURLs()
	assert.Error(t, err)
}

func TestWatcherReloadsValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	reloaded := make(chan *Config, 4)
	w.OnChange(func(c *Config) { reloaded <- c })

	// An invalid edit is ignored.
	require.NoError(t, os.WriteFile(path, []byte("name: broken\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(minimalYAML, "bytes_test", "updated", 1)), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.Name == "updated" {
				return
			}
		case <-deadline:
			t.Fatal("watcher did not deliver the updated configuration")
		}
	}
}

func TestValidateSelectorsAndTransforms(t *testing.T) {
	cfg := GenerateTemplate("basic")
	cfg.Scraper.Selectors = map[string]string{
		"hero":  "img.hero@src",
		"price": "span.price",
		"bad":   "div[",
	}
	cfg.Scraper.Transforms = map[string][]TransformRule{
		"price": {{Type: "trim"}, {Type: "regex", Pattern: "("}, {Type: "shout"}},
	}

	result := cfg.ValidateWithDetails()
	require.False(t, result.Valid)

	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"scraper.selectors.bad",
		"scraper.transforms.price[1]",
		"scraper.transforms.price[2]",
	}, fields)
}
