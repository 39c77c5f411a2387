// Package restclient is a small authenticated-HTTP helper in the shape of
// rclone's lib/rest Client/Opts, reconstructed from its call sites in
// backend/discord/discord.go and backend/uptobox/uptobox.go (that
// package's own source wasn't retrieved into this corpus). It covers only
// the one call this module needs that github.com/bwmarrin/discordgo has
// no helper for: an unauthenticated GET of a CDN attachment URL.
package restclient

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Client issues plain HTTP requests with an injected *http.Client, mirroring
// rclone's rest.Client shape (a thin wrapper, not a full SDK).
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client using hc for transport. A nil hc falls back
// to http.DefaultClient.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{httpClient: hc}
}

// Opts describes one request, mirroring rest.Opts's commonly used fields.
type Opts struct {
	Method  string
	RootURL string
	Headers map[string]string
}

// Call issues the request described by opts and returns the raw response
// body. A status of 400 or above is reported as an error.
func (c *Client) Call(ctx context.Context, opts *Opts) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.RootURL, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build request")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode >= 400 {
		return body, resp, errors.Errorf("status code %d", resp.StatusCode)
	}
	return body, resp, nil
}
