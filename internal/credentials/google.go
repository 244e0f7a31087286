package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"invoicesheet/internal/config"
)

// GoogleRefresher implements Refresher against an OAuth2 token endpoint
// using the refresh_token grant.
type GoogleRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
	logger       *zap.Logger
	now          func() time.Time
}

// NewGoogleRefresher builds the refresher from configuration.
func NewGoogleRefresher(cfg config.OAuthConfig, logger *zap.Logger) *GoogleRefresher {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleRefresher{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		now:    time.Now,
	}
}

var _ Refresher = (*GoogleRefresher)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// AccessToken exchanges the stored refresh token for a short-lived access token.
func (g *GoogleRefresher) AccessToken(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if refreshToken == "" {
		return "", time.Time{}, &Error{Msg: "stored refresh token is empty"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, &Error{Msg: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", time.Time{}, &Error{Msg: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var te tokenError
		_ = json.NewDecoder(resp.Body).Decode(&te)
		msg := "token exchange failed"
		if te.Code != "" {
			msg = "token exchange failed: " + te.Code
		}
		g.logger.Warn("credential exchange rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("oauth_error", te.Code))
		return "", time.Time{}, &Error{Msg: msg}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, &Error{Msg: "decode token response", Err: err}
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, &Error{Msg: "token response missing access_token"}
	}

	expiry := g.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return tr.AccessToken, expiry, nil
}
