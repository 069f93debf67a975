// Package jobs runs the controller's periodic housekeeping on cron
// schedules: pulling the schedule server plan and pruning the event log.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("jobs: duplicate job name")

	ErrUnknownJob = errors.New("jobs: unknown job")

	// ErrJobRunning is returned by RunNow while the job is already running.
	ErrJobRunning = errors.New("jobs: job already running")
)

// Func is the body of a job.
type Func func(ctx context.Context) error

// Logger is the subset of logging.Logger the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Entry describes a registered job.
type Entry struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitzero"`
	LastErr  string    `json:"last_error,omitempty"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
}

type job struct {
	id       cron.EntryID
	spec     string
	fn       Func
	running  sync.Mutex
	runs     int
	failures int
	lastErr  string
}

// Scheduler is a named-job wrapper over robfig/cron. A job never runs
// twice at once, and panics in scheduled runs are recovered.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger

	mu   sync.Mutex
	jobs map[string]*job
	ctx  context.Context
}

// New returns a stopped Scheduler. loc sets the time zone cron specs are
// evaluated in; nil means UTC.
func New(logger Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{l: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger,
		jobs:   make(map[string]*job),
		ctx:    context.Background(),
	}
}

// Add registers fn under name with a standard five-field spec or a
// descriptor such as "@daily".
func (s *Scheduler) Add(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if err := s.run(ctx, name, j); errors.Is(err, ErrJobRunning) {
			s.logger.Info("job still running, skipping", "job", name)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling job %s (%q): %w", name, spec, err)
	}
	j.id = id
	s.jobs[name] = j
	return nil
}

// RunNow runs a registered job synchronously with ctx, outside its
// schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, j)
}

func (s *Scheduler) run(ctx context.Context, name string, j *job) error {
	if !j.running.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer j.running.Unlock()

	started := time.Now()
	err := j.fn(ctx)

	s.mu.Lock()
	j.runs++
	j.lastErr = ""
	if err != nil {
		j.failures++
		j.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(started), "error", err)
		return err
	}
	s.logger.Debug("job finished", "job", name, "duration", time.Since(started))
	return nil
}

// Start begins running jobs; ctx is handed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("job scheduler started", "jobs", len(s.Entries()))
}

// Stop stops scheduling and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Error("job scheduler stop timed out", "error", ctx.Err())
	}
}

// Entries lists registered jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, j := range s.jobs {
		ce := s.cron.Entry(j.id)
		out = append(out, Entry{
			Name:     name,
			Spec:     j.spec,
			Next:     ce.Next,
			Prev:     ce.Prev,
			LastErr:  j.lastErr,
			Runs:     j.runs,
			Failures: j.failures,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
