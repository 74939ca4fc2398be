// Package ledger records and persists the full history of a run: per-task
// terminal records plus a chronological event stream, enough to reconstruct
// why any task ended the way it did without re-running anything.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/planweave/internal/classify"
	"github.com/openclaw/planweave/internal/plan"
)

// Status constants for runs.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event types for the run log
const (
	EventPlan       = "plan"       // Plan accepted after validation
	EventValidation = "validation" // Validation diagnostics
	EventTaskStart  = "task_start"
	EventAttempt    = "attempt" // One synthesis iteration
	EventTaskEnd    = "task_end"
	EventRunEnd     = "run_end"
)

// Run is one orchestrator execution.
type Run struct {
	ID        string            `json:"id"`
	Objective string            `json:"objective,omitempty"`
	PlanFile  string            `json:"plan_file,omitempty"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Tasks     []TaskRecord      `json:"tasks"`
	Variables map[string]string `json:"variables,omitempty"`
	Events    []Event           `json:"events"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Task returns the record for a task id, or nil.
func (r *Run) Task(id string) *TaskRecord {
	for i := range r.Tasks {
		if r.Tasks[i].TaskID == id {
			return &r.Tasks[i]
		}
	}
	return nil
}

// TaskRecord is a task's terminal entry in the ledger.
type TaskRecord struct {
	TaskID     string            `json:"task_id"`
	Status     plan.Status       `json:"status"`
	Iterations int               `json:"iterations"`
	Reason     string            `json:"reason,omitempty"`
	Advice     string            `json:"advice,omitempty"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	History    []classify.Record `json:"history,omitempty"`
}

// Event is a single entry in the run's chronological log.
type Event struct {
	Type       string    `json:"type"`
	Task       string    `json:"task,omitempty"`
	Iteration  int       `json:"iteration,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Content    string    `json:"content,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is the interface for run persistence.
type Store interface {
	Save(run *Run) error
	Load(id string) (*Run, error)
	List() ([]string, error)
}

// Manager owns run mutation. All writes go through it, so the persisted run
// is always internally consistent.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a run manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create starts a new run record.
func (m *Manager) Create(objective, planFile string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Objective: objective,
		PlanFile:  planFile,
		Status:    StatusRunning,
		Variables: make(map[string]string),
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Save(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// Get retrieves a run by ID.
func (m *Manager) Get(id string) (*Run, error) {
	return m.store.Load(id)
}

// AddEvent appends an event to the run's chronological log.
func (m *Manager) AddEvent(id string, event Event) error {
	return m.update(id, func(run *Run) {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		run.Events = append(run.Events, event)
	})
}

// RecordTask appends a task's terminal record and any artifacts it published.
func (m *Manager) RecordTask(id string, rec TaskRecord) error {
	return m.update(id, func(run *Run) {
		run.Tasks = append(run.Tasks, rec)
		if run.Variables == nil {
			run.Variables = make(map[string]string)
		}
		for name, path := range rec.Artifacts {
			run.Variables[name] = path
		}
	})
}

// Complete marks a run as complete.
func (m *Manager) Complete(id string) error {
	return m.update(id, func(run *Run) {
		run.Status = StatusComplete
	})
}

// Fail marks a run as failed.
func (m *Manager) Fail(id string, errMsg string) error {
	return m.update(id, func(run *Run) {
		run.Status = StatusFailed
		run.Error = errMsg
	})
}

func (m *Manager) update(id string, mutate func(*Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.store.Load(id)
	if err != nil {
		return err
	}
	mutate(run)
	run.UpdatedAt = time.Now()
	return m.store.Save(run)
}
