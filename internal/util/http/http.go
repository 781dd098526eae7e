// Package http provides HTTP utilities for fetching remote resources.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jmylchreest/feedhue/internal/version"
)

const (
	// UserAgentName is the application name used in the User-Agent header.
	UserAgentName = "feedhue"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBytes caps response bodies.
	DefaultMaxBytes = 32 << 20
)

// ErrBodyTooLarge is returned when a response exceeds FetchOptions.MaxBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-200 response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetchOptions configures HTTP fetch behavior.
type FetchOptions struct {
	// Timeout specifies the HTTP request timeout.
	// If zero, DefaultTimeout is used.
	Timeout time.Duration

	// Headers specifies additional HTTP headers to send with the request.
	Headers map[string]string

	// MaxBytes caps the response body. If zero, DefaultMaxBytes is used.
	MaxBytes int64

	// Retries is the number of additional attempts on temporary failures.
	Retries uint64

	// Client overrides the HTTP client (tests). Timeout is ignored when set.
	Client *http.Client
}

// Fetch retrieves content from a URL with context and timeout support.
// It automatically sets the User-Agent header and handles common HTTP errors.
// Temporary failures (network errors, 429, 5xx) are retried with exponential
// backoff when opts.Retries is non-zero.
func Fetch(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	var data []byte
	op := func() error {
		var err error
		data, err = fetchOnce(ctx, url, opts)
		if err != nil && !isTemporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(0),
	)
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, opts.Retries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return data, nil
}

func fetchOnce(ctx context.Context, url string, opts FetchOptions) ([]byte, error) {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout: timeout,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	userAgent := fmt.Sprintf("%s/%s", UserAgentName, version.Version)
	req.Header.Set("User-Agent", userAgent)

	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	maxBytes := opts.MaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytes)
	}

	return data, nil
}

// isTemporary reports whether err is worth retrying.
func isTemporary(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	if errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	// Transport-level failures.
	return true
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
