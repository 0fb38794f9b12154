// internal/media/fetcher.go
package media

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

// DefaultMaxBytes is the per-item ceiling used when none is configured (100 MB).
const DefaultMaxBytes int64 = 100 * 1024 * 1024

// DefaultUserAgent identifies media requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher obtains the bytes of a resolved target.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (Payload, error)
}

// FetcherConfig is fixed for the lifetime of a fetcher. The zero value
// verifies TLS certificates.
type FetcherConfig struct {
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy

	// InsecureSkipVerify accepts any certificate. Only an explicit caller
	// setting turns it on.
	InsecureSkipVerify bool
}

// DefaultFetcherConfig returns the stock limits and retry policy.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxBytes:  DefaultMaxBytes,
		Timeout:   30 * time.Second,
		UserAgent: DefaultUserAgent,
		Retry:     DefaultRetryPolicy(),
	}
}

// BoundedFetcher downloads targets without ever holding more than MaxBytes of
// a single body in memory.
type BoundedFetcher struct {
	config FetcherConfig
	client *http.Client
}

// NewBoundedFetcher builds a fetcher with its own transport. A nil client
// builds one from config; tests pass an httptest client.
func NewBoundedFetcher(config FetcherConfig, client *http.Client) *BoundedFetcher {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if config.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-out
		}
		client = &http.Client{Timeout: config.Timeout, Transport: transport}
	}

	return &BoundedFetcher{config: config, client: client}
}

// Fetch returns the bytes of target. Inline targets are returned as decoded;
// URL targets are streamed and retried on transient failures.
func (f *BoundedFetcher) Fetch(ctx context.Context, target Target) (Payload, error) {
	if target.IsInline() {
		if int64(len(target.Inline.Data)) > f.config.MaxBytes {
			return Payload{}, fmt.Errorf("%w: inline payload of %d bytes exceeds %d", ErrTooLarge, len(target.Inline.Data), f.config.MaxBytes)
		}
		return Payload{Data: target.Inline.Data, ContentType: target.Inline.MIMEType}, nil
	}
	if target.AbsoluteURL == "" {
		return Payload{}, fmt.Errorf("%w: target has no url", ErrInvalidReference)
	}

	var payload Payload
	err := f.config.Retry.Do(ctx, func(attempt int) error {
		p, err := f.fetchOnce(ctx, target.AbsoluteURL)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func (f *BoundedFetcher) fetchOnce(ctx context.Context, rawURL string) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return Payload{}, classifyTransportError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Payload{}, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	if resp.ContentLength > f.config.MaxBytes {
		return Payload{}, fmt.Errorf("%w: %s declares %d bytes, limit %d", ErrTooLarge, rawURL, resp.ContentLength, f.config.MaxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return Payload{}, classifyTransportError(rawURL, err)
	}
	if int64(len(data)) > f.config.MaxBytes {
		return Payload{}, fmt.Errorf("%w: %s exceeded %d bytes while streaming", ErrTooLarge, rawURL, f.config.MaxBytes)
	}

	return Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func classifyTransportError(rawURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", rawURL, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, rawURL, err)
	}
	if isCertificateError(err) {
		return fmt.Errorf("%w: %s: %v", ErrTLS, rawURL, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, rawURL, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnreachable, rawURL, err)
}

// isCertificateError reports failures that another attempt cannot fix.
func isCertificateError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownErr  x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
