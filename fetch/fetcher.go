// Package fetch resolves image references to raw bytes over HTTP.
//
// One attempt per reference: no retry, and no timeout beyond what the
// configured client does on its own.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrFetch wraps every failed fetch.
var ErrFetch = errors.New("fetch: request failed")

// ErrTooLarge is returned when a body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("fetch: response exceeds size limit")

// Config configures the fetcher.
type Config struct {
	// Timeout is the whole-request timeout. 0 (default) leaves it to the transport.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps a response body. Default: 20MB.
	MaxBytes int64 `yaml:"max_bytes"`
	// UserAgent sent with requests.
	UserAgent string `yaml:"user_agent"`
	// AllowPrivate disables the loopback/private address check.
	AllowPrivate bool `yaml:"allow_private"`
	// URLValidator overrides URL validation entirely (tests).
	URLValidator func(string) error `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "guildbrand/1.0"
	}
	if c.URLValidator == nil {
		if c.AllowPrivate {
			c.URLValidator = ValidateScheme
		} else {
			c.URLValidator = ValidateURL
		}
	}
}

// Fetcher performs single-attempt GETs.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher. Redirects are re-validated.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if err := validate(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	return &Fetcher{client: client, config: cfg}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch retrieves ref. Any transport error, non-2xx status or oversized body
// fails with an error wrapping ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := f.config.URLValidator(ref); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: http %d", ErrFetch, ref, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, ref, ErrTooLarge)
	}
	return body, nil
}
