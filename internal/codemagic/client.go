package codemagic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Codemagic builds endpoint.
const DefaultBaseURL = "https://api.codemagic.io/builds"

// DefaultListLimit is used by ListBuilds when limit is not positive.
const DefaultListLimit = 20

// BuildStatus is the state reported by the build provider.
type BuildStatus string

const (
	StatusQueued   BuildStatus = "queued"
	StatusRunning  BuildStatus = "running"
	StatusFinished BuildStatus = "finished"
	StatusFailed   BuildStatus = "failed"
	StatusCanceled BuildStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected.
// Any status the provider reports other than finished, failed or canceled is in progress.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Artifact is a downloadable build output.
type Artifact struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Build is the provider's view of a build.
type Build struct {
	ID         string      `json:"_id"`
	AppID      string      `json:"appId,omitempty"`
	Branch     string      `json:"branch,omitempty"`
	Status     BuildStatus `json:"status"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Artifacts  []Artifact  `json:"artifacts,omitempty"`
	Error      string      `json:"error,omitempty"`
	Logs       string      `json:"logs,omitempty"`
}

// StartedBuild is returned by StartBuild.
type StartedBuild struct {
	BuildID   string
	Status    BuildStatus
	StartTime *time.Time
}

// CancelResult is returned by CancelBuild.
type CancelResult struct {
	BuildID string      `json:"buildId"`
	Status  BuildStatus `json:"status"`
	Message string      `json:"message"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("codemagic API error: %d - %s", e.StatusCode, e.Message)
}

// Client talks to the Codemagic builds API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient uses a 30 second timeout client.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type buildEnvelope struct {
	Build Build `json:"build"`
}

// StartBuild submits cfg and returns the new build's identifier.
func (c *Client) StartBuild(ctx context.Context, cfg *BuildConfig) (*StartedBuild, error) {
	var env buildEnvelope
	if err := c.do(ctx, http.MethodPost, c.baseURL, cfg, &env); err != nil {
		zap.L().Error("failed to start build", zap.Error(err))
		return nil, fmt.Errorf("build start failed: %w", err)
	}
	if env.Build.ID == "" {
		return nil, fmt.Errorf("build start failed: response has no build id")
	}

	zap.L().Info("build started",
		zap.String("build_id", env.Build.ID),
		zap.String("status", string(env.Build.Status)))
	return &StartedBuild{
		BuildID:   env.Build.ID,
		Status:    env.Build.Status,
		StartTime: env.Build.StartedAt,
	}, nil
}

// GetBuildStatus fetches the current state of a build.
func (c *Client) GetBuildStatus(ctx context.Context, buildID string) (*Build, error) {
	var env buildEnvelope
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+buildID, nil, &env); err != nil {
		return nil, fmt.Errorf("get build status %s: %w", buildID, err)
	}
	if env.Build.ID == "" {
		env.Build.ID = buildID
	}
	return &env.Build, nil
}

// CancelBuild asks the provider to stop a build.
func (c *Client) CancelBuild(ctx context.Context, buildID string) (*CancelResult, error) {
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+buildID+"/cancel", struct{}{}, nil); err != nil {
		return nil, fmt.Errorf("cancel build %s: %w", buildID, err)
	}
	zap.L().Info("build canceled", zap.String("build_id", buildID))
	return &CancelResult{
		BuildID: buildID,
		Status:  StatusCanceled,
		Message: "Build canceled successfully",
	}, nil
}

// ListBuilds returns the most recent builds.
func (c *Client) ListBuilds(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var out struct {
		Builds []Build `json:"builds"`
	}
	url := c.baseURL + "?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out.Builds, nil
}

// DownloadArtifact streams the artifact at url into w and returns the bytes copied.
func (c *Client) DownloadArtifact(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-auth-token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("download artifact: %w", decodeAPIError(resp))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download artifact: %w", err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-auth-token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
