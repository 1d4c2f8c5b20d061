package taskstore

import (
	"sort"
	"sync"
	"time"

	"github.com/cexll/gamegen/internal/codemagic"
	"github.com/cexll/gamegen/internal/game"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task is an asynchronous generate-and-build job.
type Task struct {
	ID        string                 `json:"id"`
	Request   game.GenerationRequest `json:"request"`
	Targets   []codemagic.Target     `json:"targets"`
	Status    TaskStatus             `json:"status"`
	Attempt   int                    `json:"attempt"`
	Result    any                    `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Logs      []LogEntry             `json:"logs"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, error, success
	Message   string    `json:"message"`
}

// Store keeps tasks in memory. Get and List return copies, so callers never
// observe a task while a worker mutates it.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*Task),
		now:   time.Now,
	}
}

func (s *Store) Create(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.Logs == nil {
		task.Logs = []LogEntry{}
	}
	s.tasks[task.ID] = task
}

func (s *Store) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return task.clone(), true
}

func (s *Store) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.clone())
	}
	// Sort by created time descending
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks
}

// Counts returns the number of tasks per status.
func (s *Store) Counts() map[TaskStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[TaskStatus]int{
		StatusPending:   0,
		StatusRunning:   0,
		StatusCompleted: 0,
		StatusFailed:    0,
	}
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts
}

func (s *Store) UpdateStatus(id string, status TaskStatus) {
	s.update(id, func(task *Task) {
		task.Status = status
	})
}

// StartAttempt marks the task running and records the attempt number.
func (s *Store) StartAttempt(id string, attempt int) {
	s.update(id, func(task *Task) {
		task.Status = StatusRunning
		task.Attempt = attempt
		task.Error = ""
	})
}

// Complete stores the result and marks the task completed.
func (s *Store) Complete(id string, result any) {
	s.update(id, func(task *Task) {
		task.Status = StatusCompleted
		task.Result = result
		task.Error = ""
	})
}

// Fail records err and marks the task failed.
func (s *Store) Fail(id string, err error) {
	s.update(id, func(task *Task) {
		task.Status = StatusFailed
		if err != nil {
			task.Error = err.Error()
		}
	})
}

func (s *Store) AddLog(id string, level, message string) {
	s.update(id, func(task *Task) {
		task.Logs = append(task.Logs, LogEntry{
			Timestamp: s.now(),
			Level:     level,
			Message:   message,
		})
	})
}

func (s *Store) update(id string, fn func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		fn(task)
		task.UpdatedAt = s.now()
	}
}

func (t *Task) clone() *Task {
	cp := *t
	cp.Targets = append([]codemagic.Target(nil), t.Targets...)
	cp.Logs = append([]LogEntry{}, t.Logs...)
	return &cp
}
