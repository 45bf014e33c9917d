package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	tokenPath             = "/oauth/v1/generate?grant_type=client_credentials"
	defaultRefreshTimeout = 10 * time.Second
)

type CredentialConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	SafetyMargin   time.Duration
}

// CredentialCache hands out a gateway access token, refreshing it when it is
// about to expire. Concurrent refreshes share one upstream call.
type CredentialCache struct {
	cfg    CredentialConfig
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func NewCredentialCache(cfg CredentialConfig, client *http.Client) *CredentialCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.SafetyMargin < 0 {
		cfg.SafetyMargin = 0
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &CredentialCache{
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

// Token returns a valid access token. A refresh already in flight is shared,
// and it is not cancelled when the caller that started it gives up.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	results := c.group.DoChan("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *CredentialCache) refreshTimeout() time.Duration {
	if c.client.Timeout > 0 {
		return c.client.Timeout
	}
	return defaultRefreshTimeout
}

// Invalidate forgets the current token so the next call fetches a new one.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if !c.now().Add(c.cfg.SafetyMargin).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *CredentialCache) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		c.Invalidate()
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Invalidate()
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.Invalidate()
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.Invalidate()
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	token := strings.TrimSpace(payload.AccessToken)
	if token == "" {
		c.Invalidate()
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "empty access token"}
	}

	expiresIn, err := parseExpiresIn(payload.ExpiresIn)
	if err != nil {
		c.Invalidate()
		return "", &AuthError{StatusCode: resp.StatusCode, Body: err.Error()}
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(expiresIn)
	c.mu.Unlock()

	return token, nil
}

// parseExpiresIn accepts both "3599" and 3599.
func parseExpiresIn(raw json.RawMessage) (time.Duration, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" {
		return 0, fmt.Errorf("missing expires_in")
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid expires_in %q", value)
	}
	return time.Duration(seconds) * time.Second, nil
}
