// Package maskinporten obtains platform access tokens: an RS256 JWT-bearer
// grant against Maskinporten followed by the Altinn token exchange.
package maskinporten

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

const (
	grantType       = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = 2 * time.Minute
	refreshMargin   = 30 * time.Second
	exchangeTimeout = 30 * time.Second
)

// Client exchanges a signed assertion for an Altinn access token and
// caches the result until shortly before expiry.
type Client struct {
	cfg   config.MaskinportenConfig
	httpc *http.Client
	log   *logger.Logger
	key   *rsa.PrivateKey
	now   func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New creates a token client. The configured private key must be a
// PEM-encoded RSA key registered with the Maskinporten client.
func New(cfg config.MaskinportenConfig, log *logger.Logger) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.GetMaskinportenPrivateKey()))
	if err != nil {
		return nil, fmt.Errorf("parse maskinporten private key: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: exchangeTimeout},
		log:   log,
		key:   key,
		now:   time.Now,
	}, nil
}

// Token returns a valid Altinn access token, reusing the cached one while
// it has more than the refresh margin left.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-refreshMargin)) {
		return c.token, nil
	}

	mpToken, expiresIn, err := c.fetchMaskinportenToken(ctx)
	if err != nil {
		return "", err
	}

	altinnToken, err := c.exchange(ctx, mpToken)
	if err != nil {
		return "", err
	}

	c.token = altinnToken
	c.expiry = c.now().Add(time.Duration(expiresIn) * time.Second)
	c.log.Debug("token refreshed", "expires_in", expiresIn)
	return c.token, nil
}

func (c *Client) fetchMaskinportenToken(ctx context.Context) (string, int, error) {
	assertion, err := c.assertion()
	if err != nil {
		return "", 0, apperr.Wrap(apperr.KindInternal, "sign maskinporten assertion", err).WithOp("maskinporten.Token")
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GetMaskinportenTokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, apperr.Wrap(apperr.KindInternal, "build token request", err).WithOp("maskinporten.Token")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.KindTransient, "maskinporten token request failed", err).WithOp("maskinporten.Token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := apperr.Unauthorized("maskinporten rejected the assertion").
			WithOp("maskinporten.Token").
			WithStatus(resp.StatusCode).
			WithDetails(string(body))
		if resp.StatusCode >= 500 {
			err.Kind = apperr.KindTransient
		}
		c.log.UpstreamError("maskinporten", "token", resp.StatusCode, err)
		return "", 0, err
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, apperr.Wrap(apperr.KindDecode, "decode maskinporten token response", err).WithOp("maskinporten.Token")
	}
	if payload.AccessToken == "" {
		return "", 0, apperr.Decode("maskinporten token response missing access_token").WithOp("maskinporten.Token")
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}

// exchange trades the Maskinporten token for an Altinn platform token.
// Altinn returns the token as a JSON-encoded string body.
func (c *Client) exchange(ctx context.Context, mpToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GetAltinnExchangeURL(), nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "build exchange request", err).WithOp("maskinporten.exchange")
	}
	req.Header.Set("Authorization", "Bearer "+mpToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "altinn token exchange failed", err).WithOp("maskinporten.exchange")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransient, "read exchange response", err).WithOp("maskinporten.exchange")
	}

	if resp.StatusCode != http.StatusOK {
		err := apperr.Unauthorized("altinn token exchange rejected").
			WithOp("maskinporten.exchange").
			WithStatus(resp.StatusCode)
		if resp.StatusCode >= 500 {
			err.Kind = apperr.KindTransient
		}
		c.log.UpstreamError("altinn", "exchange", resp.StatusCode, err)
		return "", err
	}

	token := strings.TrimSpace(string(body))
	if json.Valid(body) {
		var quoted string
		if jsonErr := json.Unmarshal(body, &quoted); jsonErr == nil {
			token = quoted
		}
	}
	if token == "" {
		return "", apperr.Decode("empty altinn exchange response").WithOp("maskinporten.exchange")
	}
	return token, nil
}

func (c *Client) assertion() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"aud":   audienceFromTokenURL(c.cfg.GetMaskinportenTokenURL()),
		"iss":   c.cfg.GetMaskinportenClientID(),
		"scope": c.cfg.GetMaskinportenScopes(),
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"jti":   uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid := c.cfg.GetMaskinportenKeyID(); kid != "" {
		token.Header["kid"] = kid
	}
	return token.SignedString(c.key)
}

// audienceFromTokenURL derives the issuer audience from the token
// endpoint, e.g. https://test.maskinporten.no/token -> https://test.maskinporten.no/.
func audienceFromTokenURL(tokenURL string) string {
	u, err := url.Parse(tokenURL)
	if err != nil {
		return tokenURL
	}
	u.Path = "/"
	u.RawQuery = ""
	return u.String()
}
