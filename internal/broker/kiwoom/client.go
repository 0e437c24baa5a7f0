// Package kiwoom talks to the Kiwoom Securities REST API and its real-time
// websocket.
package kiwoom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"daytrader/internal/api"
	"daytrader/internal/types"
)

const (
	tokenPath = "/oauth2/token"
	orderPath = "/api/dostk/ordr"

	apiIDBuy  = "kt10000"
	apiIDSell = "kt10001"

	expiryLayout       = "20060102150405"
	tokenRefreshMargin = time.Minute
	fallbackTokenTTL   = time.Hour
)

type Params struct {
	Mode           string // LIVE or DRY_RUN
	BaseURL        string
	AppKey         string
	SecretKey      string
	Exchange       string
	RequestTimeout time.Duration // zero keeps the transport default
	HTTPClient     *http.Client
}

// TokenSource hands out a valid bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client holds the HTTP client and the cached access token.
type Client struct {
	p    Params
	rest *api.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ TokenSource = (*Client)(nil)

func NewClient(p Params) *Client {
	opts := []api.ClientOption{
		api.WithBaseURL(p.BaseURL),
		api.WithHeader("Content-Type", "application/json;charset=UTF-8"),
		api.WithLogging(true),
	}
	if p.RequestTimeout > 0 {
		opts = append(opts, api.WithTimeout(p.RequestTimeout))
	}
	opts = append(opts, api.WithHTTPClient(p.HTTPClient))
	return &Client{p: p, rest: api.NewClient(opts...), now: time.Now}
}

// Token returns the cached token, or issues a new one when it is missing or
// about to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}
	if c.p.AppKey == "" || c.p.SecretKey == "" {
		return "", errors.New("kiwoom: missing app key/secret key")
	}

	res, err := c.post(ctx, tokenPath, nil, map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.p.AppKey,
		"secretkey":  c.p.SecretKey,
	})
	if err != nil {
		return "", fmt.Errorf("kiwoom: issue token: %w", err)
	}
	if rc := res.Get("return_code"); rc.Exists() && rc.Int() != 0 {
		return "", fmt.Errorf("kiwoom: issue token: code %d: %s", rc.Int(), res.Get("return_msg").String())
	}
	tok := res.Get("token").String()
	if tok == "" {
		return "", fmt.Errorf("kiwoom: token reply without token: %s", res.Get("return_msg").String())
	}

	exp, err := time.ParseInLocation(expiryLayout, res.Get("expires_dt").String(), types.KST)
	if err != nil {
		exp = c.now().Add(fallbackTokenTTL)
	}
	c.token, c.expires = tok, exp
	return tok, nil
}

// post sends body as JSON and parses the reply. Non-2xx statuses are errors.
func (c *Client) post(ctx context.Context, path string, headers map[string]string, body any) (gjson.Result, error) {
	resp, err := c.rest.PostJSON(ctx, path, body, headers)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON reply: %.256s", path, resp.Body)
	}
	return gjson.ParseBytes(resp.Body), nil
}
