// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// token is the cached credential pair. expiresAt is stored with the
// configured skew already subtracted, so the token is valid iff expiresAt
// is still in the future.
type token struct {
	accessToken      string
	refreshToken     string
	expiresAt        time.Time
	refreshExpiresAt time.Time
}

func (t *token) valid(now time.Time) bool {
	return t != nil && t.accessToken != "" && t.expiresAt.After(now)
}

func (t *token) refreshable(now time.Time) bool {
	return t != nil && t.refreshToken != "" && t.refreshExpiresAt.After(now)
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// getAccessToken returns the cached token while it is valid. Concurrent
// callers racing a refresh are coalesced: at most one token request is in
// flight per client and every waiter receives the same fresh token.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	cached := c.token
	c.tokenMu.Unlock()
	now := c.now()
	if cached.valid(now) {
		return cached.accessToken, nil
	}

	v, err, _ := c.tokenFlight.Do("token", func() (interface{}, error) {
		// Re-check under the flight: a waiter queued behind the winner
		// finds the fresh token already stored.
		c.tokenMu.Lock()
		cached := c.token
		c.tokenMu.Unlock()
		now := c.now()
		if cached.valid(now) {
			return cached.accessToken, nil
		}

		var fresh *token
		var err error
		if cached.refreshable(now) {
			fresh, err = c.requestToken(ctx, map[string]string{
				"grant_type":    "refresh_token",
				"refresh_token": cached.refreshToken,
				"client_id":     c.config.ClientID,
			})
			if err != nil {
				// Expired or revoked refresh token: fall through to a
				// from-scratch authentication.
				fresh = nil
			}
		}
		if fresh == nil {
			fresh, err = c.requestToken(ctx, map[string]string{
				"grant_type":    "client_credentials",
				"client_id":     c.config.ClientID,
				"client_secret": c.config.ClientSecret,
			})
			if err != nil {
				return nil, err
			}
		}

		c.tokenMu.Lock()
		c.token = fresh
		c.tokenMu.Unlock()
		return fresh.accessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidateToken drops the cache after an upstream 401.
func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = nil
	c.tokenMu.Unlock()
}

func (c *Client) requestToken(ctx context.Context, form map[string]string) (*token, error) {
	body, err := json.Marshal(form)
	if err != nil {
		return nil, errors.Wrap(err, "encoding token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building token request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading token response")
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(ErrAuth, "token endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, errors.Wrapf(ErrUpstream, "token endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("token endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, errors.Wrap(err, "decoding token response")
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token endpoint returned no access_token")
	}

	now := c.now()
	tok := &token{
		accessToken:  tr.AccessToken,
		refreshToken: tr.RefreshToken,
	}
	switch {
	case tr.ExpiresIn > 0:
		tok.expiresAt = now.Add(time.Duration(tr.ExpiresIn)*time.Second - c.config.TokenSkew)
	default:
		// Some gateways omit expires_in; when the access token is a JWT
		// the exp claim still tells us how long it lives.
		if exp, ok := jwtExpiry(tr.AccessToken); ok {
			tok.expiresAt = exp.Add(-c.config.TokenSkew)
		} else {
			tok.expiresAt = now.Add(5*time.Minute - c.config.TokenSkew)
		}
	}
	if tr.RefreshExpiresIn > 0 {
		tok.refreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second)
	}
	return tok, nil
}

// jwtExpiry reads the exp claim of a JWT without verifying the signature.
// The expiry is informational only; authorization stays with the upstream.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
