// Package gateway is the single outgoing-request pipeline to the
// storefront API.
//
// Every call carries the current access token as a bearer credential.
// On the first authorization failure of a request the gateway performs
// one silent refresh-and-retry; a failed refresh surfaces the original
// failure, bounding retry amplification to one hop per request.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/lenscart/lenscart/internal/credstore"
	"github.com/lenscart/lenscart/internal/errs"
)

// Client is the request pipeline. Token rotation is a constructor-injected
// concern: the credential store is passed in, never ambient.
type Client struct {
	base  *url.URL
	http  *http.Client
	store credstore.Store
	log   *zap.Logger

	refreshMu sync.Mutex // single-flight guard for token refresh
}

// New constructs a Client for the API at baseURL. hc may be nil, in
// which case a default client with a 30s timeout is used.
func New(baseURL string, hc *http.Client, store credstore.Store, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: u, http: hc, store: store, log: log}, nil
}

// errorPayload is the single error schema accepted from the server.
type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (e errorPayload) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}

// do issues one JSON request. When authed is true the current access
// token is attached and a single refresh-and-retry is allowed on 401.
// out, when non-nil, receives the decoded 2xx body.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var token string
	if authed {
		creds, err := c.store.Load(ctx)
		if err != nil && !errors.Is(err, errs.ErrNoCredentials) {
			return fmt.Errorf("%w: load credentials: %v", errs.ErrNetwork, err)
		}
		token = creds.AccessToken
	}

	status, data, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && authed && token != "" {
		newTok, rerr := c.refresh(ctx, token)
		if rerr != nil {
			c.log.Warn("token refresh failed",
				zap.String("path", path),
				zap.Error(rerr),
			)
			return fmt.Errorf("%w: %s", errs.ErrAuthExpired, httpError(status, data))
		}
		status, data, err = c.send(ctx, method, path, body, newTok)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			// replayed exactly once; the fresh token was rejected too
			return fmt.Errorf("%w: %s", errs.ErrAuthExpired, httpError(status, data))
		}
	}

	if status < 200 || status > 299 {
		return statusError(status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed response body: %v", errs.ErrNetwork, err)
	}
	return nil
}

// send performs a single HTTP round trip and reads the full body.
func (c *Client) send(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if rid, err := uuid.NewV4(); err == nil {
		req.Header.Set("X-Request-ID", rid.String())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", errs.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", errs.ErrNetwork, err)
	}

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)
	return resp.StatusCode, data, nil
}

// refresh exchanges the refresh token for a new pair and persists it.
// Single-flight: when a concurrent caller already rotated the token the
// failed one reuses the rotated token without another exchange.
func (c *Client) refresh(ctx context.Context, failedToken string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	creds, err := c.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if creds.AccessToken != "" && creds.AccessToken != failedToken {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		return "", errs.ErrNoCredentials
	}

	status, data, err := c.send(ctx, http.MethodPost, "/auth/token/refresh",
		map[string]string{"refresh": creds.RefreshToken}, "")
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", statusError(status, data)
	}

	var pair struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(data, &pair); err != nil {
		return "", fmt.Errorf("%w: malformed refresh response: %v", errs.ErrNetwork, err)
	}
	if pair.Access == "" {
		return "", fmt.Errorf("%w: refresh response missing access token", errs.ErrNetwork)
	}
	if pair.Refresh == "" {
		pair.Refresh = creds.RefreshToken
	}

	creds.AccessToken = pair.Access
	creds.RefreshToken = pair.Refresh
	if err := c.store.Save(ctx, creds); err != nil {
		return "", err
	}
	c.log.Info("access token refreshed")
	return pair.Access, nil
}

// statusError maps a non-2xx response to the error taxonomy. A body
// matching the error schema becomes a ServerError; anything else is a
// generic network failure.
func statusError(status int, data []byte) error {
	var ep errorPayload
	if err := json.Unmarshal(data, &ep); err == nil && ep.text() != "" {
		return &errs.ServerError{Status: status, Code: ep.Code, Message: ep.text()}
	}
	return fmt.Errorf("%w: %s", errs.ErrNetwork, httpError(status, data))
}

func httpError(status int, data []byte) string {
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fmt.Sprintf("unexpected status %d", status)
	}
	return fmt.Sprintf("unexpected status %d: %s", status, msg)
}
