// Package interservice is the client side of machine-to-machine calls: it
// requests audience-scoped service tokens from the auth service, caches them,
// and retries a rejected downstream call exactly once with a fresh token.
package interservice

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	xerrors "finditnow-auth/internal/pkg/errors"

	"go.uber.org/zap"
)

// tokenValidityMargin guards against clock skew and in-flight latency: a
// cached token is only trusted while more than this remains before expiry.
const tokenValidityMargin = 15 * time.Second

// Response is the outcome of a downstream call.
type Response struct {
	StatusCode int
	Body       []byte
}

// ResponseCache is the optional idempotent-GET cache. Advisory only; never
// consulted for non-GET or security-sensitive calls.
type ResponseCache interface {
	GetAPICache(ctx context.Context, key string) ([]byte, error)
	PutAPICache(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client authenticates this service against the auth service's token
// endpoint and calls other services on its behalf.
type Client struct {
	service    string
	secret     string
	authURL    string
	resolveURL func(service string) string
	httpClient *http.Client
	cache      ResponseCache
	logger     *zap.Logger

	mu     sync.Mutex
	tokens map[string]cachedToken
	locks  map[string]*sync.Mutex
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// usable reports whether the token still has enough life left to survive an
// in-flight request.
func (c cachedToken) usable() bool {
	return c.token != "" && time.Now().Before(c.expiresAt.Add(-tokenValidityMargin))
}

// New builds a Client for the named calling service. resolveURL maps a
// service name to its base URL; cache may be nil to disable response caching.
func New(service, secret, authURL string, resolveURL func(string) string, cache ResponseCache, logger *zap.Logger) *Client {
	return &Client{
		service:    service,
		secret:     secret,
		authURL:    authURL,
		resolveURL: resolveURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		logger:     logger,
		tokens:     make(map[string]cachedToken),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Call performs an authenticated request against toService. On 401/403 the
// cached token for that audience is evicted and the call retried exactly
// once; a second rejection is returned to the caller.
func (c *Client) Call(ctx context.Context, toService, path, method string, body []byte) (*Response, error) {
	token, err := c.serviceToken(ctx, toService)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, toService, path, method, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.evictToken(toService)

		token, err = c.serviceToken(ctx, toService)
		if err != nil {
			return nil, err
		}
		resp, err = c.do(ctx, toService, path, method, body, token)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// CallCached is Call restricted to GETs, consulting the response cache first
// and populating it on 2xx with the caller's TTL.
func (c *Client) CallCached(ctx context.Context, toService, path string, body []byte, ttl time.Duration) (*Response, error) {
	if c.cache == nil {
		return c.Call(ctx, toService, path, http.MethodGet, body)
	}

	key := cacheKey(toService, path, body)
	if data, err := c.cache.GetAPICache(ctx, key); err == nil {
		return &Response{StatusCode: http.StatusOK, Body: data}, nil
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		c.logger.Warn("response cache read failed", zap.String("service", toService), zap.Error(err))
	}

	resp, err := c.Call(ctx, toService, path, http.MethodGet, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := c.cache.PutAPICache(ctx, key, resp.Body, ttl); err != nil {
			c.logger.Warn("response cache write failed", zap.String("service", toService), zap.Error(err))
		}
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, toService, path, method string, body []byte, token string) (*Response, error) {
	url := c.resolveURL(toService) + path

	var reader io.Reader
	if len(body) > 0 && method != http.MethodGet && method != http.MethodDelete {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call to %s failed: %w", toService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", toService, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// serviceToken returns a usable token for the audience, fetching one if
// needed. Concurrent callers for the same audience share a single fetch.
func (c *Client) serviceToken(ctx context.Context, audience string) (string, error) {
	c.mu.Lock()
	if tok, ok := c.tokens[audience]; ok && tok.usable() {
		c.mu.Unlock()
		return tok.token, nil
	}
	lock, ok := c.locks[audience]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[audience] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Another caller may have fetched while we waited.
	c.mu.Lock()
	if tok, ok := c.tokens[audience]; ok && tok.usable() {
		c.mu.Unlock()
		return tok.token, nil
	}
	c.mu.Unlock()

	fresh, err := c.fetchToken(ctx, audience)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tokens[audience] = fresh
	c.mu.Unlock()

	return fresh.token, nil
}

func (c *Client) fetchToken(ctx context.Context, audience string) (cachedToken, error) {
	payload, err := json.Marshal(map[string]string{"audience": audience})
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/internal/service-token", bytes.NewReader(payload))
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.service + ":" + c.secret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cachedToken{}, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachedToken{}, fmt.Errorf("failed to read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return cachedToken{}, fmt.Errorf("auth service rejected service token request: %s: %w", body, xerrors.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return cachedToken{}, fmt.Errorf("token endpoint returned %d: %s: %w", resp.StatusCode, body, xerrors.ErrInternal)
	}

	var tokenResp struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return cachedToken{}, fmt.Errorf("invalid token response payload: %w", err)
	}

	return cachedToken{
		token:     tokenResp.AccessToken,
		expiresAt: time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) evictToken(audience string) {
	c.mu.Lock()
	delete(c.tokens, audience)
	c.mu.Unlock()
}

func cacheKey(service, path string, body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s:%s:%s", service, path, hex.EncodeToString(sum[:]))
}
