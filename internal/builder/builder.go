package builder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
)

// BuildClient starts builds and reports their status.
type BuildClient interface {
	StatusGetter
	StartBuild(ctx context.Context, cfg *codemagic.BuildConfig) (*codemagic.StartedBuild, error)
}

// App identifies the project to build.
type App struct {
	Name      string
	Framework game.Platform
	Branch    string
}

// Settings are applied to every build config.
type Settings struct {
	AppID      string
	Recipients []string
	Signing    codemagic.Signing
}

// BuildResult describes a successful mobile build.
type BuildResult struct {
	BuildID     string               `json:"buildId"`
	Target      codemagic.Target     `json:"target"`
	Status      string               `json:"status"`
	DownloadURL string               `json:"downloadUrl,omitempty"`
	BuildTime   time.Duration        `json:"buildTime"`
	Artifacts   []codemagic.Artifact `json:"artifacts,omitempty"`
}

// Builder drives a build from submission to completion.
type Builder struct {
	client   BuildClient
	poller   *Poller
	settings Settings
}

// New creates a Builder. poller.Client is set to client when empty.
func New(client BuildClient, poller *Poller, settings Settings) *Builder {
	if poller == nil {
		poller = NewPoller(client, 0, 0)
	}
	if poller.Client == nil {
		poller.Client = client
	}
	return &Builder{client: client, poller: poller, settings: settings}
}

// Config returns the build payload for app and target.
func (b *Builder) Config(app App, target codemagic.Target) (*codemagic.BuildConfig, error) {
	return codemagic.NewBuildConfig(codemagic.BuildOptions{
		AppID:      b.settings.AppID,
		Branch:     app.Branch,
		Framework:  app.Framework,
		Target:     target,
		Recipients: b.settings.Recipients,
		Signing:    b.settings.Signing,
	})
}

// Start submits a build for app and target without waiting for it.
func (b *Builder) Start(ctx context.Context, app App, target codemagic.Target) (*codemagic.StartedBuild, error) {
	cfg, err := b.Config(app, target)
	if err != nil {
		return nil, err
	}
	return b.client.StartBuild(ctx, cfg)
}

// Monitor waits for a previously started build.
func (b *Builder) Monitor(ctx context.Context, buildID string) (*PollResult, error) {
	return b.poller.Monitor(ctx, buildID)
}

// BuildMobileApp starts a build for target and blocks until it completes.
func (b *Builder) BuildMobileApp(ctx context.Context, app App, target codemagic.Target) (*BuildResult, error) {
	logger := zap.L().With(
		zap.String("app", app.Name),
		zap.String("framework", string(app.Framework)),
		zap.String("target", string(target)))

	started, err := b.Start(ctx, app, target)
	if err != nil {
		logger.Error("mobile build failed to start", zap.Error(err))
		return nil, fmt.Errorf("mobile build failed: %w", err)
	}
	logger.Info("mobile build started", zap.String("build_id", started.BuildID))

	res, err := b.poller.Monitor(ctx, started.BuildID)
	if err != nil {
		logger.Error("mobile build failed", zap.String("build_id", started.BuildID), zap.Error(err))
		return nil, fmt.Errorf("mobile build failed: %w", err)
	}

	return &BuildResult{
		BuildID:     started.BuildID,
		Target:      target,
		Status:      res.Status,
		DownloadURL: res.DownloadURL,
		BuildTime:   res.BuildTime,
		Artifacts:   res.Artifacts,
	}, nil
}

// BuildTargets builds every target concurrently. Results keep the order of
// targets; the first failure cancels the remaining builds.
func (b *Builder) BuildTargets(ctx context.Context, app App, targets []codemagic.Target) ([]*BuildResult, error) {
	results := make([]*BuildResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			res, err := b.BuildMobileApp(gctx, app, target)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
