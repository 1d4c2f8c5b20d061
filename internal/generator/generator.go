package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/materializer"
	"github.com/cexll/gamegen/internal/prompt"
	"github.com/cexll/gamegen/internal/provider"
)

// Generator turns a GenerationRequest into generated game files.
type Generator struct {
	provider provider.Provider
	writer   *materializer.Writer
	limiter  Limiter
	now      func() time.Time
	newID    func() string
}

// Limiter gates completion calls. Reserve returns an error when no call may be made.
type Limiter interface {
	Reserve() error
}

// Option configures a Generator.
type Option func(*Generator)

// WithWriter persists every successful result through w.
func WithWriter(w *materializer.Writer) Option {
	return func(g *Generator) { g.writer = w }
}

// WithLimiter reserves a call from l before every completion.
func WithLimiter(l Limiter) Option {
	return func(g *Generator) { g.limiter = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithIDFunc overrides result ID generation.
func WithIDFunc(newID func() string) Option {
	return func(g *Generator) { g.newID = newID }
}

// New creates a Generator backed by p.
func New(p provider.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: p,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProviderName returns the name of the backing completion provider.
func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

// Generate validates req, asks the provider for code and materializes the
// platform's file set. Invalid requests fail before any provider call.
func (g *Generator) Generate(ctx context.Context, req game.GenerationRequest) (*game.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := zap.L().With(
		zap.String("platform", string(req.Platform)),
		zap.String("game_type", req.GameType),
		zap.String("provider", g.provider.Name()))
	logger.Info("generating game", zap.String("description", req.Description))

	result, err := g.generate(ctx, req)
	if err != nil {
		logger.Error("game generation failed", zap.Error(err))
		return nil, fmt.Errorf("game generation failed: %w", err)
	}
	return result, nil
}

func (g *Generator) generate(ctx context.Context, req game.GenerationRequest) (*game.GenerationResult, error) {
	text, err := prompt.BuildGamePrompt(req)
	if err != nil {
		return nil, err
	}

	if g.limiter != nil {
		if err := g.limiter.Reserve(); err != nil {
			return nil, err
		}
	}

	content, err := g.provider.Complete(ctx, text)
	if err != nil {
		return nil, err
	}

	files, err := materializer.Files(req.Platform, ExtractCode(content), materializer.Options{
		GameType: req.GameType,
	})
	if err != nil {
		return nil, err
	}

	result := &game.GenerationResult{
		ID:          g.newID(),
		Platform:    req.Platform,
		GameType:    req.GameType,
		Description: req.Description,
		Files:       files,
		Status:      game.StatusGenerated,
		Timestamp:   g.now().UTC(),
	}

	if g.writer != nil {
		dir, err := g.writer.Write(result)
		if err != nil {
			return nil, err
		}
		result.OutputDir = dir
	}
	return result, nil
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+#-]*[ \t]*\r?\n(.*?)\r?\n?```")

// ExtractCode returns the body of the first fenced code block in content, or
// the trimmed content when there is none.
func ExtractCode(content string) string {
	if m := fencePattern.FindStringSubmatch(content); len(m) == 2 {
		return m[1]
	}
	return strings.TrimSpace(content)
}
