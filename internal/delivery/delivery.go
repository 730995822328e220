// Package delivery posts signed reports to the collection endpoint.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"holoport-stats/internal/stats"
)

const (
	HeaderSignature = "X-Hpos-Signature"
	HeaderHostID    = "X-Hpos-Id"
)

var ErrNoEndpoint = errors.New("no delivery endpoint configured")

type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{endpoint: strings.TrimSpace(endpoint), http: &http.Client{Timeout: timeout}}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts the payload bytes exactly as signed. An unsigned report is
// refused before anything goes on the wire.
func (c *Client) Send(ctx context.Context, report stats.Report) error {
	if c.endpoint == "" {
		return ErrNoEndpoint
	}
	if err := report.Validate(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(report.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, report.Signature)
	req.Header.Set(HeaderHostID, report.HoloportID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return fmt.Errorf("collector status %d", resp.StatusCode)
		}
		return fmt.Errorf("collector status %d: %s", resp.StatusCode, msg)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
