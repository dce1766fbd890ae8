// Package jobs tracks long-running crawl work: submit a job, poll its
// status and logs while it runs, collect its result when it finishes.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// LogEntry is one timestamped job log line.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Snapshot is a point-in-time copy of a job, safe to hand to callers.
type Snapshot struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Status    Status     `json:"status"`
	Progress  float64    `json:"progress"`
	Logs      []LogEntry `json:"logs"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Job is the handle passed to running work. It implements the progress
// reporting the orchestrator wants.
type Job struct {
	id string
	m  *Manager
}

// ID returns the job's identifier.
func (j *Job) ID() string { return j.id }

// SetProgress records completion as a fraction, clamped to [0, 1].
func (j *Job) SetProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	j.m.mutate(j.id, func(s *state) {
		if fraction > s.progress {
			s.progress = fraction
		}
	})
}

// Logf appends a timestamped line to the job log.
func (j *Job) Logf(format string, args ...any) {
	entry := LogEntry{At: time.Now(), Message: fmt.Sprintf(format, args...)}
	j.m.mutate(j.id, func(s *state) {
		s.logs = append(s.logs, entry)
	})
}

type state struct {
	kind      string
	status    Status
	progress  float64
	logs      []LogEntry
	result    any
	err       string
	startedAt time.Time
	endedAt   *time.Time
	cancel    context.CancelFunc
}

// Manager owns job state behind one mutex. Jobs run in their own
// goroutines; a panic in job work fails that job and nothing else.
type Manager struct {
	mu     sync.Mutex
	jobs   map[string]*state
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewManager builds an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		jobs:   make(map[string]*state),
		logger: logger,
	}
}

// WorkFunc is the job body. Its return value becomes the job result.
type WorkFunc func(ctx context.Context, job *Job) (any, error)

// Submit starts work in a new goroutine and returns the job id
// immediately. Job ids are time-ordered.
func (m *Manager) Submit(ctx context.Context, kind string, work WorkFunc) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	jobID := id.String()

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.jobs[jobID] = &state{
		kind:      kind,
		status:    StatusRunning,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	m.mu.Unlock()

	job := &Job{id: jobID, m: m}
	m.wg.Add(1)
	go m.run(jobCtx, job, kind, work)
	return jobID, nil
}

func (m *Manager) run(ctx context.Context, job *Job, kind string, work WorkFunc) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked",
				zap.String("job_id", job.id), zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			m.finish(job.id, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	m.logger.Info("job started", zap.String("job_id", job.id), zap.String("kind", kind))
	result, err := work(ctx, job)
	m.finish(job.id, result, err)
	if err != nil {
		m.logger.Warn("job failed", zap.String("job_id", job.id), zap.Error(err))
	} else {
		m.logger.Info("job completed", zap.String("job_id", job.id))
	}
}

func (m *Manager) finish(id string, result any, err error) {
	now := time.Now()
	m.mutate(id, func(s *state) {
		s.endedAt = &now
		if err != nil {
			s.status = StatusFailed
			s.err = err.Error()
			return
		}
		s.status = StatusCompleted
		s.progress = 1
		s.result = result
	})
}

func (m *Manager) mutate(id string, fn func(*state)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.jobs[id]; ok {
		fn(s)
	}
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshot(id, s), true
}

// Cancel signals a running job to stop. Finished jobs are left alone.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.jobs[id]
	if !ok || s.status != StatusRunning {
		return false
	}
	s.cancel()
	return true
}

// Active lists running jobs, oldest first.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Snapshot
	for id, s := range m.jobs {
		if s.status == StatusRunning {
			out = append(out, snapshot(id, s))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// Wait blocks until every submitted job has finished. Used at shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func snapshot(id string, s *state) Snapshot {
	logs := make([]LogEntry, len(s.logs))
	copy(logs, s.logs)
	return Snapshot{
		ID:        id,
		Kind:      s.kind,
		Status:    s.status,
		Progress:  s.progress,
		Logs:      logs,
		Result:    s.result,
		Error:     s.err,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}
