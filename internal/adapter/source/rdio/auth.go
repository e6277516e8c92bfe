package rdio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/rdioexport/internal/domain"
)

// Tokens are refreshed this long before they expire
const expiryMargin = 30 * time.Second

// TokenSource supplies the bearer token for API calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued access token
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", domain.ErrAuthFailed
	}
	return string(t), nil
}

// ClientCredentials obtains tokens with the OAuth 2.0 client credentials
// grant and caches them until shortly before they expire.
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClientCredentials creates a token source for the given app credentials
func NewClientCredentials(tokenURL, clientID, clientSecret string, logger *slog.Logger) *ClientCredentials {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCredentials{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a cached token or requests a new one
func (a *ClientCredentials) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expires) {
		return a.token, nil
	}

	tok, err := a.requestToken(ctx)
	if err != nil {
		return "", err
	}

	a.token = tok.AccessToken
	a.expires = a.now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryMargin)
	a.logger.Debug("obtained access token", "expires_in", tok.ExpiresIn)
	return a.token, nil
}

// Invalidate drops the cached token so the next call requests a fresh one
func (a *ClientCredentials) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

func (a *ClientCredentials) requestToken(ctx context.Context) (*tokenDTO, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	a.logger.Debug("requesting access token", "url", a.tokenURL)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Error("token request failed", "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized:
	default:
		a.logger.Error("token request error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var tok tokenDTO
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tok.Error != "" || tok.AccessToken == "" {
		a.logger.Error("token request rejected", "status", resp.StatusCode, "error", tok.Error, "description", tok.Description)
		return nil, domain.ErrAuthFailed
	}
	return &tok, nil
}
