package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultTimeout     = 10 * time.Second
)

// RequestError is the terminal failure after the retry budget is spent.
// It carries the last observed HTTP status (0 for transport errors) and
// the total number of attempts made.
type RequestError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request %s failed after %d attempts: status %d", e.URL, e.Attempts, e.Status)
	}
	return fmt.Sprintf("request %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Options parameterise the retrying client.
type Options struct {
	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration
	UserAgent   string
}

// Client issues outbound HTTP calls with bounded retry and linear backoff.
type Client struct {
	opts   Options
	http   *http.Client
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New constructs a retrying client.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger.With().Str("component", "httpx").Logger(),
		sleep:  sleepCtx,
	}
}

// Get fetches url with the retry budget and returns the response body.
// Any 2xx status is success; payload validation belongs to the caller.
// Non-success status or transport failure after all retries yields a
// terminal *RequestError wrapping the last observed failure.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	maxRetries := c.opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		body, status, err := c.doGet(ctx, url, header)
		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}

		lastStatus = status
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", status)
		}

		if attempt > maxRetries {
			break
		}

		delay := c.opts.BackoffBase * time.Duration(attempt)
		c.logger.Debug().Str("url", url).Int("attempt", attempt).
			Dur("backoff", delay).Err(lastErr).Msg("retrying request")
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, &RequestError{
		URL:      url,
		Status:   lastStatus,
		Attempts: maxRetries + 1,
		Err:      lastErr,
	}
}

func (c *Client) doGet(ctx context.Context, url string, header http.Header) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
