package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/costcontrol"
	"github.com/cexll/gamegen/internal/dispatcher"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/taskstore"
)

// Generator produces games synchronously.
type Generator interface {
	Generate(ctx context.Context, req game.GenerationRequest) (*game.GenerationResult, error)
	ProviderName() string
}

// Enqueuer accepts background tasks.
type Enqueuer interface {
	Enqueue(task *taskstore.Task) error
}

// QueueReporter is implemented by queues that expose their load.
type QueueReporter interface {
	Stats() dispatcher.Stats
}

// BuildService queries and cancels provider builds.
type BuildService interface {
	GetBuildStatus(ctx context.Context, buildID string) (*codemagic.Build, error)
	CancelBuild(ctx context.Context, buildID string) (*codemagic.CancelResult, error)
	ListBuilds(ctx context.Context, limit int) ([]codemagic.Build, error)
}

// UsageReporter reports completion call usage for the current day.
type UsageReporter interface {
	Stats() costcontrol.DailyStats
}

// Handler serves the JSON API.
type Handler struct {
	generator  Generator
	store      *taskstore.Store
	queue      Enqueuer
	builds     BuildService
	usage      UsageReporter
	publishing bool
	started    time.Time
	newID      func() string
}

// Option configures a Handler.
type Option func(*Handler)

// WithBuilds enables the build and provider build endpoints.
func WithBuilds(svc BuildService) Option {
	return func(h *Handler) { h.builds = svc }
}

// WithPublishing reports repository publishing in /api/status.
func WithPublishing(enabled bool) Option {
	return func(h *Handler) { h.publishing = enabled }
}

// WithUsage adds daily completion usage to /api/status.
func WithUsage(u UsageReporter) Option {
	return func(h *Handler) { h.usage = u }
}

// NewHandler creates a Handler. Schemas are compiled eagerly so a broken
// schema fails at startup.
func NewHandler(gen Generator, store *taskstore.Store, queue Enqueuer, opts ...Option) (*Handler, error) {
	if _, err := loadSchemas(); err != nil {
		return nil, err
	}
	h := &Handler{
		generator: gen,
		store:     store,
		queue:     queue,
		started:   time.Now(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate-game", h.handleGenerateGame).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/generate", h.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/build", h.handleBuild).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.handleGetJob).Methods(http.MethodGet)
	api.HandleFunc("/builds", h.handleListBuilds).Methods(http.MethodGet)
	api.HandleFunc("/builds/{id}", h.handleGetBuild).Methods(http.MethodGet)
	api.HandleFunc("/builds/{id}/cancel", h.handleCancelBuild).Methods(http.MethodPost)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "gamegen",
			"status":  "running",
			"message": "Welcome to AI Game Generator Pro API!",
		})
	}).Methods(http.MethodGet)
}

type generateGameRequest struct {
	GameName string        `json:"gameName"`
	Platform game.Platform `json:"platform"`
}

// handleGenerateGame queues a generation named after gameName.
func (h *Handler) handleGenerateGame(w http.ResponseWriter, r *http.Request) {
	var body generateGameRequest
	if err := decodeValid(r.Body, schemaGenerateGame, &body); err != nil {
		writeError(w, err)
		return
	}

	req := game.GenerationRequest{
		Description: fmt.Sprintf("A game called %q", body.GameName),
		Platform:    body.Platform,
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.enqueue(req, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Game %s for %s is being generated.", body.GameName, body.Platform),
		"jobId":   task.ID,
	})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req game.GenerationRequest
	if err := decodeValid(r.Body, schemaGenerate, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statusResponse struct {
	Status             string                       `json:"status"`
	Provider           string                       `json:"provider"`
	SupportedPlatforms []game.Platform              `json:"supportedPlatforms"`
	BuildsEnabled      bool                         `json:"buildsEnabled"`
	PublishingEnabled  bool                         `json:"publishingEnabled"`
	Jobs               map[taskstore.TaskStatus]int `json:"jobs"`
	Queue              *dispatcher.Stats            `json:"queue,omitempty"`
	Usage              *costcontrol.DailyStats      `json:"usage,omitempty"`
	Uptime             string                       `json:"uptime"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var usage *costcontrol.DailyStats
	if h.usage != nil {
		stats := h.usage.Stats()
		usage = &stats
	}
	var queue *dispatcher.Stats
	if r, ok := h.queue.(QueueReporter); ok {
		stats := r.Stats()
		queue = &stats
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:             "ok",
		Provider:           h.generator.ProviderName(),
		SupportedPlatforms: game.SupportedPlatforms(),
		BuildsEnabled:      h.builds != nil,
		PublishingEnabled:  h.publishing,
		Jobs:               h.store.Counts(),
		Queue:              queue,
		Usage:              usage,
		Uptime:             time.Since(h.started).Round(time.Second).String(),
	})
}

type buildRequest struct {
	game.GenerationRequest
	Targets []codemagic.Target `json:"targets"`
}

func (h *Handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	if h.builds == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "mobile builds are not configured"})
		return
	}

	var body buildRequest
	if err := decodeValid(r.Body, schemaBuild, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.GenerationRequest.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Targets) == 0 {
		body.Targets = []codemagic.Target{codemagic.TargetAndroid}
	}

	task, err := h.enqueue(body.GenerationRequest, body.Targets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": task.ID})
}

func (h *Handler) enqueue(req game.GenerationRequest, targets []codemagic.Target) (*taskstore.Task, error) {
	id := h.newID()
	task := &taskstore.Task{ID: id, Request: req, Targets: targets}
	h.store.Create(task)
	h.store.AddLog(id, "info", "Task queued")

	// The store owns task from here on; workers get their own copy.
	queued := &taskstore.Task{ID: id, Request: req, Targets: targets}
	if err := h.queue.Enqueue(queued); err != nil {
		h.store.Fail(task.ID, err)
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	zap.L().Info("task queued", zap.String("task_id", task.ID), zap.Int("targets", len(targets)))
	return task, nil
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.store.List()})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	task, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if !h.requireBuilds(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", errInvalidRequest))
			return
		}
		limit = n
	}

	builds, err := h.builds.ListBuilds(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (h *Handler) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	if !h.requireBuilds(w) {
		return
	}
	build, err := h.builds.GetBuildStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, build)
}

func (h *Handler) handleCancelBuild(w http.ResponseWriter, r *http.Request) {
	if !h.requireBuilds(w) {
		return
	}
	res, err := h.builds.CancelBuild(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) requireBuilds(w http.ResponseWriter) bool {
	if h.builds == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "mobile builds are not configured"})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps validation failures to 400, an exhausted daily limit to 429
// and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var limit *costcontrol.LimitError
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, game.ErrUnsupportedPlatform),
		errors.Is(err, game.ErrMissingDescription):
		status = http.StatusBadRequest
	case errors.As(err, &limit):
		status = http.StatusTooManyRequests
	default:
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}
