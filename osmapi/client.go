// Package osmapi is a rate limited client for the parts of the OSM API
// this project needs: changeset listings, changeset downloads, element
// versions and histories, and authenticated comment posting.
package osmapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	osmwatch "github.com/osmwatch/osmwatch"
	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("osmapi")

var ErrNotFound = errors.New("element not found")

// ErrGone marks elements the API redacted or deleted (HTTP 410). The
// history endpoint still works for those.
var ErrGone = errors.New("element gone")

type Client struct {
	BaseURL   string
	UserAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// New returns a client for the given API base URL
// (e.g. https://api.openstreetmap.org/api/0.6). All requests share one
// rate limiter so parallel workers stay within maxRPS combined.
func New(baseURL string, maxRPS float64) *Client {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			Dial: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConnsPerHost:   20,
		},
	}
	if maxRPS <= 0 {
		maxRPS = 10
	}
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		UserAgent: "osmwatch " + osmwatch.Version,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(maxRPS), int(maxRPS)+1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting %s", u)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.Wrapf(ErrNotFound, "GET %s", path)
	case http.StatusGone:
		resp.Body.Close()
		return nil, errors.Wrapf(ErrGone, "GET %s", path)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		return nil, errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.do(ctx, "GET", path, query, nil, "")
}
