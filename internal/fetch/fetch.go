// Package fetch retrieves external sources over HTTP(S) and from file://
// URLs, retrying transient failures with exponential backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
)

// DefaultRetries is how many times a transient failure is retried.
const DefaultRetries = 4

// HTTP fetches http, https and file URLs.
type HTTP struct {
	client  *http.Client
	retries uint64
	logger  *slog.Logger
	backoff func() backoff.BackOff
}

// Option configures an HTTP fetcher.
type Option func(*HTTP)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithTimeout sets the overall timeout of a single request.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) { h.client = &http.Client{Timeout: d} }
}

// WithRetries sets how many times transient failures are retried.
func WithRetries(n uint64) Option {
	return func(h *HTTP) { h.retries = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) { h.logger = l }
}

// WithBackOff replaces the exponential backoff policy; tests use it to
// avoid sleeping.
func WithBackOff(b func() backoff.BackOff) Option {
	return func(h *HTTP) { h.backoff = b }
}

// New creates a fetcher.
func New(opts ...Option) *HTTP {
	h := &HTTP{
		client:  http.DefaultClient,
		retries: DefaultRetries,
		logger:  slog.Default(),
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StatusError is a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// retry runs op until it succeeds, fails permanently or retries run out.
func (h *HTTP) retry(ctx context.Context, rawURL string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(h.backoff(), h.retries), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		h.logger.Warn("retrying", "url", rawURL, "error", err, "wait", wait)
	})
}

// Available reports whether url answers a HEAD request with 2xx. Client
// errors mean unavailable; server errors are retried and then returned.
func (h *HTTP) Available(ctx context.Context, rawURL string) (bool, error) {
	if path, ok := filePath(rawURL); ok {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}

	_, err := h.head(ctx, rawURL)
	var se *StatusError
	if errors.As(err, &se) && se.Status < 500 {
		return false, nil
	}
	return err == nil, err
}

// ModTime returns the Last-Modified time of url, or the file's modification
// time for file URLs.
func (h *HTTP) ModTime(ctx context.Context, rawURL string) (time.Time, error) {
	if path, ok := filePath(rawURL); ok {
		fi, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		return fi.ModTime(), nil
	}

	resp, err := h.head(ctx, rawURL)
	if err != nil {
		return time.Time{}, err
	}
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, fmt.Errorf("%s: no Last-Modified header", rawURL)
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad Last-Modified %q: %w", rawURL, lm, err)
	}
	return t, nil
}

func (h *HTTP) head(ctx context.Context, rawURL string) (*http.Response, error) {
	var resp *http.Response
	err := h.retry(ctx, rawURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := h.client.Do(req)
		if err != nil {
			return err
		}
		r.Body.Close()
		if err := checkStatus(rawURL, r.StatusCode); err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Fetch downloads url to dst, truncating dst on every attempt.
func (h *HTTP) Fetch(ctx context.Context, rawURL, dst string) error {
	start := time.Now()
	var n int64
	var err error
	if path, ok := filePath(rawURL); ok {
		n, err = copyFile(path, dst)
	} else {
		err = h.retry(ctx, rawURL, func() error {
			n, err = h.get(ctx, rawURL, dst)
			return err
		})
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	elapsed := time.Since(start)
	rate := ""
	if secs := elapsed.Seconds(); secs > 0 {
		rate = humanize.Bytes(uint64(float64(n)/secs)) + "/s"
	}
	h.logger.Info("fetched", "url", rawURL, "size", humanize.Bytes(uint64(n)), "rate", rate)
	return nil
}

func (h *HTTP) get(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		return 0, err
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// checkStatus turns non-2xx responses into errors; client errors are
// permanent.
func checkStatus(rawURL string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	err := &StatusError{URL: rawURL, Status: status}
	if status >= 400 && status < 500 {
		return backoff.Permanent(err)
	}
	return err
}

func filePath(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return u.Path, true
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
