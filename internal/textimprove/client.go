// Package textimprove wraps the external text-improvement API used to
// rewrite trainee notes.
package textimprove

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("text improvement is not configured")

// Client calls the upstream improvement endpoint.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient builds a client. An empty apiKey yields a disabled client
// whose Improve always returns ErrDisabled.
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &Client{http: c, apiKey: apiKey}
}

// Enabled reports whether the upstream is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type improveRequest struct {
	Text string `json:"text"`
}

type improveResponse struct {
	Improved string `json:"improved"`
	Error    string `json:"error"`
}

// Improve sends the text upstream and returns the rewritten version.
func (c *Client) Improve(ctx context.Context, text string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	var out improveResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(improveRequest{Text: text}).
		SetResult(&out).
		Post("/v1/improve")
	if err != nil {
		return "", fmt.Errorf("call text improvement api: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("text improvement api: %s", msg)
	}
	if strings.TrimSpace(out.Improved) == "" {
		return "", errors.New("text improvement api returned empty result")
	}
	return out.Improved, nil
}
