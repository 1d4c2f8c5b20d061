package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/config"
	"github.com/cexll/gamegen/internal/costcontrol"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/provider"
	"github.com/cexll/gamegen/internal/taskstore"
)

type stubProvider struct{}

func (stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "void main() {}", nil
}

func (stubProvider) Name() string { return "stub" }

func stubFactory(ctx context.Context, cfg *provider.Config) (provider.Provider, error) {
	return stubProvider{}, nil
}

func baseConfig(t *testing.T) *config.Config {
	return &config.Config{
		Provider:          "openai",
		OpenAIAPIKey:      "sk-test",
		OutputDir:         t.TempDir(),
		ArtifactDir:       t.TempDir(),
		CodemagicAPIURL:   "https://api.codemagic.io/builds",
		BuildPollInterval: time.Second,
		BuildMaxWait:      time.Minute,
		AWSRegion:         "us-east-1",
		GitHubBranch:      "main",
	}
}

func TestNew_GenerationOnly(t *testing.T) {
	svc, err := New(context.Background(), baseConfig(t), stubFactory)
	require.NoError(t, err)
	assert.Equal(t, "stub", svc.Generator.ProviderName())
	assert.Nil(t, svc.Codemagic)
	assert.Nil(t, svc.Builder)
	assert.Nil(t, svc.Artifacts)
	assert.Nil(t, svc.Publisher)
	assert.Equal(t, 0, svc.Usage.Stats().DailyLimit)
}

func TestNew_DailyLimitGatesGeneration(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DailyGenerationLimit = 1

	svc, err := New(context.Background(), cfg, stubFactory)
	require.NoError(t, err)

	req := game.GenerationRequest{Description: "pong", Platform: game.PlatformUnity}
	_, err = svc.Generator.Generate(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Generator.Generate(context.Background(), req)
	var limitErr *costcontrol.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 1, svc.Usage.Stats().DailyCalls)
}

func TestNew_WithBuildsAndPublishing(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CodemagicAPIToken = "cm"
	cfg.CodemagicAppID = "app"
	cfg.GitHubToken = "ghp"
	cfg.GitHubRepo = "o/r"
	cfg.Signing.AndroidKeyAlias = "upload"

	svc, err := New(context.Background(), cfg, stubFactory)
	require.NoError(t, err)
	require.NotNil(t, svc.Builder)
	require.NotNil(t, svc.Artifacts)
	require.NotNil(t, svc.Publisher)
	assert.Equal(t, "o/r", svc.Publisher.Repo)
	assert.Equal(t, "main", svc.Publisher.BaseBranch)
}

func TestNew_WithS3(t *testing.T) {
	cfg := baseConfig(t)
	cfg.CodemagicAPIToken = "cm"
	cfg.CodemagicAppID = "app"
	cfg.ArtifactS3Bucket = "builds"
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.S3AccessKey = "minio"
	cfg.S3SecretKey = "minio123"

	svc, err := New(context.Background(), cfg, stubFactory)
	require.NoError(t, err)
	assert.NotNil(t, svc.Artifacts)
}

func TestNew_ProviderError(t *testing.T) {
	boom := errors.New("bad key")
	_, err := New(context.Background(), baseConfig(t), func(ctx context.Context, cfg *provider.Config) (provider.Provider, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestNewExecutor_GenerationOnlyFailsBuildTasks(t *testing.T) {
	svc, err := New(context.Background(), baseConfig(t), stubFactory)
	require.NoError(t, err)

	store := taskstore.NewStore()
	task := &taskstore.Task{
		ID: "t-1",
		Request: game.GenerationRequest{
			Platform:    game.PlatformFlutter,
			Description: "tap the ball",
		},
		Targets: []codemagic.Target{codemagic.TargetAndroid},
	}
	store.Create(task)

	err = svc.NewExecutor(store).Execute(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mobile builds are not configured")

	got, ok := store.Get("t-1")
	require.True(t, ok)
	assert.Equal(t, taskstore.StatusFailed, got.Status)
}
