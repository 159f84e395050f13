package kis

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/signum/internal/models"
)

const (
	// TokenProvider identifies this broker in the token cache
	TokenProvider = "kis"

	// TokenExpiryMargin refreshes tokens shortly before they expire
	TokenExpiryMargin = 5 * time.Minute

	// defaultTokenTTL applies when the broker omits expires_in
	defaultTokenTTL = 86400 * time.Second
)

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// cacheKey derives a stable identifier for this credential pair and
// environment, so live and paper tokens never collide in the cache.
func (c *Client) cacheKey() string {
	sum := md5.Sum([]byte(c.appKey + ":" + strconv.FormatBool(c.isMock)))
	return hex.EncodeToString(sum[:])[:8]
}

// ensureToken returns a valid access token, reusing the in-memory or
// persisted token when possible and issuing a new one otherwise.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.token != nil && !c.token.Expired(now, TokenExpiryMargin) {
		return c.token.AccessToken, nil
	}

	if c.tokens != nil {
		cached, err := c.tokens.GetToken(ctx, TokenProvider, c.cacheKey())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Token cache lookup failed")
		} else if cached != nil && !cached.Expired(now, TokenExpiryMargin) {
			c.token = cached
			return cached.AccessToken, nil
		}
	}

	token, err := c.issueToken(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	if c.tokens != nil {
		if err := c.tokens.SaveToken(ctx, token); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist access token")
		}
	}

	return token.AccessToken, nil
}

// issueToken requests a fresh access token from the broker
func (c *Client) issueToken(ctx context.Context) (*models.TokenCache, error) {
	path := "/oauth2/token"
	if c.isMock {
		path = "/oauth2/tokenP"
	}

	payload, err := json.Marshal(tokenRequest{
		GrantType: "client_credentials",
		AppKey:    c.appKey,
		AppSecret: c.appSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("content-type", "application/json; charset=utf-8")

	c.logger.Debug().Str("path", path).Bool("mock", c.isMock).Msg("Requesting access token")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &BrokerError{Code: "token", Message: "empty access token", Endpoint: path}
	}

	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	c.logger.Info().Str("cache_key", c.cacheKey()).Dur("ttl", ttl).Msg("Issued new KIS access token")

	return &models.TokenCache{
		Provider:    TokenProvider,
		CacheKey:    c.cacheKey(),
		AccessToken: tr.AccessToken,
		ExpiresAt:   time.Now().Add(ttl),
	}, nil
}
