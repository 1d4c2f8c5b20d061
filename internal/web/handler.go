package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/executor"
	"github.com/cexll/gamegen/internal/game"
	"github.com/cexll/gamegen/internal/taskstore"
)

//go:embed templates/*.html
var templatesFS embed.FS

var listedStatuses = []taskstore.TaskStatus{
	taskstore.StatusPending,
	taskstore.StatusRunning,
	taskstore.StatusCompleted,
	taskstore.StatusFailed,
}

// Handler renders the job pages.
type Handler struct {
	store     *taskstore.Store
	templates *template.Template
}

// NewHandler parses the embedded templates.
func NewHandler(taskStore *taskstore.Store) (*Handler, error) {
	funcs := sprig.FuncMap()
	funcs["statusColor"] = statusColor
	funcs["statusIcon"] = statusIcon
	funcs["logLevelColor"] = logLevelColor

	tmpl, err := template.New("web").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse web templates: %w", err)
	}
	return &Handler{store: taskStore, templates: tmpl}, nil
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks", h.handleTaskList).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.handleTaskDetail).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}/files/{name:.+}", h.handleTaskFile).Methods(http.MethodGet)
}

type statusCount struct {
	Status taskstore.TaskStatus
	Count  int
}

// handleTaskList lists jobs, newest first. ?status= narrows the list to one state.
func (h *Handler) handleTaskList(w http.ResponseWriter, r *http.Request) {
	filter := taskstore.TaskStatus(strings.ToLower(r.URL.Query().Get("status")))
	if filter != "" && !knownStatus(filter) {
		http.Error(w, fmt.Sprintf("unknown status %q", filter), http.StatusBadRequest)
		return
	}

	tasks := h.store.List()
	if filter != "" {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Status == filter {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}

	counts := h.store.Counts()
	summary := make([]statusCount, 0, len(listedStatuses))
	for _, s := range listedStatuses {
		summary = append(summary, statusCount{Status: s, Count: counts[s]})
	}

	h.render(w, "task_list.html", struct {
		Tasks   []*taskstore.Task
		Filter  taskstore.TaskStatus
		Summary []statusCount
	}{tasks, filter, summary})
}

func (h *Handler) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	task, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	var outcome *executor.Outcome
	var files []string
	if o, ok := task.Result.(*executor.Outcome); ok && o.Game != nil {
		outcome = o
		files = o.Game.FileNames()
	}
	h.render(w, "task_detail.html", struct {
		Task    *taskstore.Task
		Outcome *executor.Outcome
		Files   []string
	}{task, outcome, files})
}

// handleTaskFile serves one generated source file as plain text.
func (h *Handler) handleTaskFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result := h.generated(vars["id"])
	if result == nil {
		http.Error(w, "Task has no generated files", http.StatusNotFound)
		return
	}
	content, ok := result.Files[vars["name"]]
	if !ok {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write([]byte(content))
}

func (h *Handler) generated(id string) *game.GenerationResult {
	task, ok := h.store.Get(id)
	if !ok {
		return nil
	}
	outcome, ok := task.Result.(*executor.Outcome)
	if !ok {
		return nil
	}
	return outcome.Game
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf strings.Builder
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		zap.L().Error("failed to render page", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(buf.String()))
}

func knownStatus(s taskstore.TaskStatus) bool {
	for _, known := range listedStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func statusColor(status taskstore.TaskStatus) string {
	switch status {
	case taskstore.StatusRunning:
		return "#0d6efd"
	case taskstore.StatusCompleted:
		return "#198754"
	case taskstore.StatusFailed:
		return "#dc3545"
	}
	return "#6c757d"
}

func statusIcon(status taskstore.TaskStatus) string {
	switch status {
	case taskstore.StatusRunning:
		return "⟳"
	case taskstore.StatusCompleted:
		return "✓"
	case taskstore.StatusFailed:
		return "✗"
	}
	return "○"
}

// logLevelColor colors a log line by level; unknown levels render grey.
func logLevelColor(level string) string {
	switch strings.ToLower(level) {
	case "error":
		return "#dc3545"
	case "success":
		return "#198754"
	case "info":
		return "#0d6efd"
	}
	return "#6c757d"
}
