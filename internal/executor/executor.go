package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/artifact"
	"github.com/cexll/gamegen/internal/builder"
	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/concurrency"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/publish"
	"github.com/cexll/gamegen/internal/taskstore"
)

// Generator produces game files.
type Generator interface {
	Generate(ctx context.Context, req game.GenerationRequest) (*game.GenerationResult, error)
}

// Builder configures and runs mobile builds.
type Builder interface {
	Config(app builder.App, target codemagic.Target) (*codemagic.BuildConfig, error)
	BuildTargets(ctx context.Context, app builder.App, targets []codemagic.Target) ([]*builder.BuildResult, error)
}

// Publisher pushes generated files to the repository Codemagic builds from.
type Publisher interface {
	Publish(ctx context.Context, result *game.GenerationResult, configs map[codemagic.Target]*codemagic.BuildConfig) (*publish.Commit, error)
}

// ArtifactStore downloads finished build outputs.
type ArtifactStore interface {
	Fetch(ctx context.Context, rawURL, key string) (*artifact.Stored, error)
}

// Outcome is stored as the task result.
type Outcome struct {
	Game      *game.GenerationResult `json:"game"`
	Commit    *publish.Commit        `json:"commit,omitempty"`
	Builds    []*builder.BuildResult `json:"builds,omitempty"`
	Artifacts []*artifact.Stored     `json:"artifacts,omitempty"`
}

// Executor runs tasks: generate, then for tasks with targets publish, build
// every target and fetch artifacts. A nil Builder limits it to generation.
type Executor struct {
	generator Generator
	builder   Builder
	publisher Publisher
	artifacts ArtifactStore
	locks     *concurrency.Manager
	store     *taskstore.Store
}

// Option configures an Executor.
type Option func(*Executor)

// WithPublisher commits generated files before building.
func WithPublisher(p Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithArtifactStore downloads the primary artifact of each build.
func WithArtifactStore(s ArtifactStore) Option {
	return func(e *Executor) { e.artifacts = s }
}

// WithBuildLocks rejects a build task while an identical one is running.
func WithBuildLocks(m *concurrency.Manager) Option {
	return func(e *Executor) { e.locks = m }
}

// New creates a new executor
func New(g Generator, b Builder, store *taskstore.Store, opts ...Option) *Executor {
	e := &Executor{generator: g, builder: b, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one attempt of task and records progress in the store.
// Failures that another attempt cannot fix are returned as NonRetryableError.
func (e *Executor) Execute(ctx context.Context, task *taskstore.Task) error {
	logger := zap.L().With(zap.String("task_id", task.ID), zap.Int("attempt", task.Attempt))
	e.store.StartAttempt(task.ID, task.Attempt)

	var outcome *Outcome
	err := e.acquire(task)
	if err == nil {
		defer e.release(task)
		outcome, err = e.run(ctx, task)
	}
	if err != nil {
		err = classify(err)
		logger.Error("task failed", zap.Error(err), zap.Bool("retryable", !IsNonRetryable(err)))
		e.store.AddLog(task.ID, "error", err.Error())
		e.store.Fail(task.ID, err)
		return err
	}

	if len(outcome.Builds) > 0 {
		e.store.AddLog(task.ID, "success", fmt.Sprintf("Built %d target(s)", len(outcome.Builds)))
	} else {
		e.store.AddLog(task.ID, "success", "Generated "+outcome.Game.ID)
	}
	e.store.Complete(task.ID, outcome)
	logger.Info("task completed")
	return nil
}

func buildKey(task *taskstore.Task) string {
	req := task.Request
	targets := make([]string, len(task.Targets))
	for i, t := range task.Targets {
		targets[i] = string(t)
	}
	return concurrency.Key(string(req.Platform)+"|"+req.GameType+"|"+req.Description, targets...)
}

func (e *Executor) acquire(task *taskstore.Task) error {
	if e.locks == nil || len(task.Targets) == 0 {
		return nil
	}
	if !e.locks.TryAcquire(buildKey(task)) {
		return NonRetryable(ErrDuplicateBuild)
	}
	return nil
}

func (e *Executor) release(task *taskstore.Task) {
	if e.locks == nil || len(task.Targets) == 0 {
		return
	}
	e.locks.Release(buildKey(task))
}

func (e *Executor) run(ctx context.Context, task *taskstore.Task) (*Outcome, error) {
	e.store.AddLog(task.ID, "info", fmt.Sprintf("Generating %s game", task.Request.Platform))
	result, err := e.generator.Generate(ctx, task.Request)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Game: result}
	if len(task.Targets) == 0 {
		return outcome, nil
	}
	if e.builder == nil {
		return nil, NonRetryable(fmt.Errorf("mobile builds are not configured"))
	}

	app := builder.App{
		Name:      result.ID,
		Framework: result.Platform,
	}

	if e.publisher != nil {
		configs := make(map[codemagic.Target]*codemagic.BuildConfig, len(task.Targets))
		for _, target := range task.Targets {
			cfg, err := e.builder.Config(app, target)
			if err != nil {
				return nil, NonRetryable(err)
			}
			configs[target] = cfg
		}

		commit, err := e.publisher.Publish(ctx, result, configs)
		if err != nil {
			return nil, err
		}
		outcome.Commit = commit
		app.Branch = commit.Branch
		e.store.AddLog(task.ID, "info", fmt.Sprintf("Published to branch %s (%s)", commit.Branch, commit.SHA))
	}

	e.store.AddLog(task.ID, "info", fmt.Sprintf("Starting builds for %v", task.Targets))
	builds, err := e.builder.BuildTargets(ctx, app, task.Targets)
	if err != nil {
		return nil, err
	}
	outcome.Builds = builds

	if e.artifacts == nil {
		return outcome, nil
	}
	for _, b := range builds {
		if b.DownloadURL == "" {
			continue
		}
		stored, err := e.artifacts.Fetch(ctx, b.DownloadURL, b.BuildID)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact for build %s: %w", b.BuildID, err)
		}
		outcome.Artifacts = append(outcome.Artifacts, stored)
		e.store.AddLog(task.ID, "info", "Stored artifact "+stored.Path)
	}
	return outcome, nil
}
