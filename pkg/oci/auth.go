package oci

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

var challengeRe = regexp.MustCompile(`(\w+)="([^"]*)"`)

type challenge struct {
	realm   string
	service string
	scope   string
}

// parseWWWAuthenticate parses a Bearer WWW-Authenticate header value
// ("Bearer realm=\"...\",service=\"...\",scope=\"...\"") into its
// component parts.
func parseWWWAuthenticate(header string) (challenge, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return challenge{}, fmt.Errorf("unsupported auth scheme: %s", header)
	}
	var c challenge
	for _, m := range challengeRe.FindAllStringSubmatch(header, -1) {
		switch m[1] {
		case "realm":
			c.realm = m[2]
		case "service":
			c.service = m[2]
		case "scope":
			c.scope = m[2]
		}
	}
	if c.realm == "" {
		return challenge{}, fmt.Errorf("missing realm in WWW-Authenticate header")
	}
	return c, nil
}

type tokenCacheEntry struct {
	token     string
	expiresAt time.Time
}

// tokenCache caches per-repository bearer tokens, keyed by scope,
// since a GHCR pull token is valid for a single repository.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]tokenCacheEntry
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]tokenCacheEntry)}
}

func (c *tokenCache) get(scope string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[scope]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.token, true
}

func (c *tokenCache) set(scope, token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = tokenCacheEntry{token: token, expiresAt: time.Now().Add(ttl)}
}

// fetchToken exchanges credentials for a bearer token per the Docker
// registry v2 auth flow: when a PAT is configured, try HTTP Basic with
// it first, then fall back to an anonymous request.
func (c *Client) fetchToken(ctx context.Context, ch challenge, pat string) (string, error) {
	if token, ok := c.tokens.get(ch.scope); ok {
		return token, nil
	}

	url := fmt.Sprintf("%s?service=%s&scope=%s", ch.realm, ch.service, ch.scope)

	headers := make(http.Header)
	if pat != "" {
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		req2.SetBasicAuth("token", pat)
		resp, err := c.http.Do(ctx, req2)
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				token, ttl, err := decodeTokenResponse(resp)
				if err == nil {
					c.tokens.set(ch.scope, token, ttl)
					return token, nil
				}
			}
		}
	}

	resp, err := c.http.Get(ctx, url, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}
	token, ttl, err := decodeTokenResponse(resp)
	if err != nil {
		return "", err
	}
	c.tokens.set(ch.scope, token, ttl)
	return token, nil
}

func decodeTokenResponse(resp *http.Response) (string, time.Duration, error) {
	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", 0, err
	}
	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", 0, fmt.Errorf("token response carried no token")
	}
	ttl := 5 * time.Minute
	if body.ExpiresIn > 0 {
		ttl = time.Duration(body.ExpiresIn) * time.Second
	}
	return token, ttl, nil
}
