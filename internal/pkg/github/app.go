package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second

	// tokens are dropped from the cache this long before GitHub expires them
	tokenExpiryMargin = 5 * time.Minute
	perPage           = 100
)

var ErrNotConfigured = errors.New("github app is not configured")

// TokenStore caches installation access tokens between requests.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Config struct {
	AppID      string
	PrivateKey string
	BaseURL    string
	Timeout    time.Duration
}

// ConfigFromEnv reads the App credentials. The private key may be given inline
// (GITHUB_APP_PRIVATE_KEY, "\n" escapes allowed) or as a file path.
func ConfigFromEnv() Config {
	key := env.GetEnv("GITHUB_APP_PRIVATE_KEY", "")
	if key == "" {
		if path := env.GetEnv("GITHUB_APP_PRIVATE_KEY_PATH", ""); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				fiberlog.Errorf("[GitHub] Failed to read private key %s: %v", path, err)
			} else {
				key = string(raw)
			}
		}
	}
	return Config{
		AppID:      env.GetEnv("GITHUB_APP_ID", ""),
		PrivateKey: strings.ReplaceAll(key, `\n`, "\n"),
		BaseURL:    env.GetEnv("GITHUB_API_URL", defaultBaseURL),
		Timeout:    env.GetEnvDuration("GITHUB_HTTP_TIMEOUT", defaultTimeout),
	}
}

// App talks to GitHub as the App itself (JWT) and hands out
// installation-scoped clients.
type App struct {
	appID  string
	key    *rsa.PrivateKey
	http   *resty.Client
	tokens TokenStore

	Now func() time.Time
}

// NewApp builds an App client. tokens may be nil, in which case every
// installation client requests a fresh access token.
func NewApp(cfg Config, tokens TokenStore) (*App, error) {
	if cfg.AppID == "" || cfg.PrivateKey == "" {
		return nil, ErrNotConfigured
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse github app private key: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetHeader("User-Agent", "GitDataEdit")

	return &App{
		appID:  cfg.AppID,
		key:    key,
		http:   client,
		tokens: tokens,
		Now:    time.Now,
	}, nil
}

// JWT signs a short-lived App token. iat is backdated to absorb clock drift.
func (a *App) JWT() (string, error) {
	now := a.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
}

func (a *App) appRequest(ctx context.Context) (*resty.Request, error) {
	token, err := a.JWT()
	if err != nil {
		return nil, fmt.Errorf("failed to sign app jwt: %w", err)
	}
	return a.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// GetInstallation fetches one installation of the App.
func (a *App) GetInstallation(ctx context.Context, installationID int64) (*Installation, error) {
	req, err := a.appRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.
		SetPathParam("id", strconv.FormatInt(installationID, 10)).
		Get("/app/installations/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var inst Installation
	if err := json.Unmarshal(resp.Body(), &inst); err != nil {
		return nil, fmt.Errorf("failed to parse installation response: %w", err)
	}
	return &inst, nil
}

// ListInstallations returns every installation of the App across all pages.
func (a *App) ListInstallations(ctx context.Context) ([]Installation, error) {
	var all []Installation
	for page := 1; ; page++ {
		req, err := a.appRequest(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := req.
			SetQueryParam("per_page", strconv.Itoa(perPage)).
			SetQueryParam("page", strconv.Itoa(page)).
			Get("/app/installations")
		if err != nil {
			return nil, fmt.Errorf("failed to list installations: %w", err)
		}
		if err := checkResponse(resp); err != nil {
			return nil, err
		}

		var batch []Installation
		if err := json.Unmarshal(resp.Body(), &batch); err != nil {
			return nil, fmt.Errorf("failed to parse installations response: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

func tokenCacheKey(installationID int64) string {
	return "installation_token:" + strconv.FormatInt(installationID, 10)
}

// InstallationToken returns an access token for the installation, served from
// the token store while it is still valid.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	key := tokenCacheKey(installationID)
	if a.tokens != nil {
		if token, err := a.tokens.Get(ctx, key); err == nil && token != "" {
			return token, nil
		}
	}

	req, err := a.appRequest(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.
		SetPathParam("id", strconv.FormatInt(installationID, 10)).
		Post("/app/installations/{id}/access_tokens")
	if err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var tok accessToken
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("failed to parse access token response: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("empty access token for installation %d", installationID)
	}

	if a.tokens != nil {
		ttl := tok.ExpiresAt.Sub(a.Now()) - tokenExpiryMargin
		if ttl > 0 {
			if err := a.tokens.Set(ctx, key, tok.Token, ttl); err != nil {
				fiberlog.Warnf("[GitHub] Failed to cache token for installation %d: %v", installationID, err)
			}
		}
	}
	return tok.Token, nil
}

// Installation returns a client acting as the given installation.
func (a *App) Installation(ctx context.Context, installationID int64) (*InstallationClient, error) {
	token, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return &InstallationClient{http: a.http, installationID: installationID, token: token}, nil
}
