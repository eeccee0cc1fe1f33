// Package uploader performs single HTTP delivery attempts against the
// collector endpoint. Retry budgets live in the delivery package.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"timelapse/internal/artifact"
	"timelapse/internal/config"
	"timelapse/internal/logging"
)

const (
	userAgent      = "timelapse/0.1.0"
	bodyExcerptLen = 512
	defaultTimeout = 30 * time.Second
)

// StatusError reports a response other than 200 from the collector.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector returned %d", e.Code)
	}
	return fmt.Sprintf("collector returned %d: %s", e.Code, e.Body)
}

// Client uploads captures for one device.
type Client struct {
	base     string
	deviceID string
	token    string
	timeout  time.Duration
	http     *http.Client
	logger   *slog.Logger
}

// New builds a client from the device and server sections of cfg.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	timeout := cfg.ServerTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:     strings.TrimRight(cfg.Server.URL, "/"),
		deviceID: cfg.Device.ID,
		token:    cfg.Device.Token,
		timeout:  timeout,
		http:     &http.Client{},
		logger:   logging.NewComponentLogger(logger, "uploader"),
	}
}

// Upload makes exactly one delivery attempt. It succeeds only on HTTP 200.
func (c *Client) Upload(ctx context.Context, item artifact.Item) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload", bytes.NewReader(item.Payload))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = item.Size()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Device-Id", c.deviceID)
	req.Header.Set("X-Device-Token", c.token)
	req.Header.Set("X-Filename", item.Name)
	req.Header.Set("X-Request-Id", requestID)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("upload %s: timed out after %s: %w", item.Name, c.timeout, err)
		}
		return fmt.Errorf("upload %s: %w", item.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: excerpt(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	logging.WithContext(ctx, c.logger).Debug("upload accepted",
		logging.Duration("elapsed", time.Since(started)),
		logging.Int64("bytes", item.Size()),
	)
	return nil
}

// Probe checks whether the collector answers at all. Any response below 500
// counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/", nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe collector: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{Code: resp.StatusCode, Body: excerpt(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func excerpt(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, bodyExcerptLen))
	return strings.TrimSpace(string(body))
}
