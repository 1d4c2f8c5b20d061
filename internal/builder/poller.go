package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/codemagic"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxWait      = 30 * time.Minute
)

// ErrBuildTimeout is returned when no terminal status arrives within MaxWait.
var ErrBuildTimeout = errors.New("build timeout - exceeded maximum wait time")

// BuildFailedError reports a build that ended failed or canceled.
type BuildFailedError struct {
	BuildID string
	Status  codemagic.BuildStatus
	Reason  string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build %s: %s", e.Status, e.Reason)
}

// StatusGetter fetches the current state of a build.
type StatusGetter interface {
	GetBuildStatus(ctx context.Context, buildID string) (*codemagic.Build, error)
}

// PollResult is produced when a build finishes successfully.
type PollResult struct {
	BuildID     string
	Status      string
	DownloadURL string
	BuildTime   time.Duration
	Artifacts   []codemagic.Artifact
}

// Poller waits for a build to reach a terminal status.
type Poller struct {
	Client   StatusGetter
	Interval time.Duration
	MaxWait  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller. Non-positive durations fall back to the defaults.
func NewPoller(client StatusGetter, interval, maxWait time.Duration) *Poller {
	return &Poller{
		Client:   client,
		Interval: interval,
		MaxWait:  maxWait,
	}
}

// Monitor polls buildID every Interval until it finishes, fails, is canceled
// or MaxWait elapses. Status fetch errors are returned as-is. Cancelling ctx
// stops the wait with the context error.
func (p *Poller) Monitor(ctx context.Context, buildID string) (*PollResult, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := p.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	logger := zap.L().With(zap.String("build_id", buildID))
	start := now()

	for now().Sub(start) < maxWait {
		build, err := p.Client.GetBuildStatus(ctx, buildID)
		if err != nil {
			return nil, err
		}

		switch build.Status {
		case codemagic.StatusFinished:
			result := &PollResult{
				BuildID:   buildID,
				Status:    "success",
				BuildTime: now().Sub(start),
				Artifacts: build.Artifacts,
			}
			if len(build.Artifacts) > 0 {
				result.DownloadURL = build.Artifacts[0].URL
			}
			logger.Info("build finished",
				zap.Duration("build_time", result.BuildTime),
				zap.Int("artifacts", len(build.Artifacts)))
			return result, nil
		case codemagic.StatusFailed, codemagic.StatusCanceled:
			reason := build.Error
			if reason == "" {
				reason = "Unknown error"
			}
			logger.Warn("build ended", zap.String("status", string(build.Status)), zap.String("reason", reason))
			return nil, &BuildFailedError{BuildID: buildID, Status: build.Status, Reason: reason}
		}

		logger.Debug("build in progress", zap.String("status", string(build.Status)))
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}

	logger.Warn("build wait exceeded", zap.Duration("max_wait", maxWait))
	return nil, ErrBuildTimeout
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
