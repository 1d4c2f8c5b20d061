package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"
)

// AppAuth holds GitHub App authentication configuration
type AppAuth struct {
	AppID      string
	PrivateKey string

	// BaseURL overrides the GitHub API endpoint; empty means api.github.com.
	BaseURL    string
	HTTPClient *http.Client
}

// InstallationToken represents a GitHub App installation access token
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// GenerateJWT creates a JWT token for GitHub App authentication
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	// Backdate iat to tolerate clock drift between us and GitHub.
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signedToken, nil
}

// GetInstallationToken gets an installation access token for owner/repo
func (a *AppAuth) GetInstallationToken(ctx context.Context, repo string) (*InstallationToken, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}

	client, err := newClient(a.HTTPClient, a.BaseURL, jwtToken)
	if err != nil {
		return nil, err
	}

	installation, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	token, _, err := client.Apps.CreateInstallationToken(ctx, installation.GetID(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &InstallationToken{
		Token:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// Credentials select between a personal token and GitHub App auth.
type Credentials struct {
	Token      string
	AppID      string
	PrivateKey string
	BaseURL    string
}

// NewGitHubClient returns a client authorized to write to repo.
func NewGitHubClient(ctx context.Context, creds Credentials, repo string) (*github.Client, error) {
	token := creds.Token
	if token == "" {
		auth := &AppAuth{AppID: creds.AppID, PrivateKey: creds.PrivateKey, BaseURL: creds.BaseURL}
		installation, err := auth.GetInstallationToken(ctx, repo)
		if err != nil {
			return nil, err
		}
		token = installation.Token
	}
	return newClient(nil, creds.BaseURL, token)
}

// SplitRepo parses "owner/repo".
func SplitRepo(repo string) (string, string, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}
	return parts[0], parts[1], nil
}

func newClient(httpClient *http.Client, baseURL, token string) (*github.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client := github.NewClient(httpClient).WithAuthToken(token)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}
