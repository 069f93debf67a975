package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

const (
	// writeTimeout bounds each SQLite write made from the engine callback.
	writeTimeout = 2 * time.Second

	reportTimeout = 15 * time.Second

	// drainTimeout bounds the final flush when Run stops.
	drainTimeout = 5 * time.Second

	DefaultQueueSize = 64
)

// Reporter forwards event lifecycle changes upstream, e.g. to the
// schedule server.
type Reporter interface {
	ReportStart(ctx context.Context, e Event) error
	ReportCompletion(ctx context.Context, e Event) error
}

// Logger is the subset of logging.Logger the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type report struct {
	event    Event
	complete bool
}

// Recorder keeps one watering_events row per zone run. It implements
// irrigation.TransitionSink: a start inserts a running row, an extension
// updates its planned duration, and a stop closes it.
//
// Upstream reports are queued and sent by Run, so the engine never waits
// on the network. When the queue is full the report is dropped and logged.
type Recorder struct {
	repo *Repository
	now  func() time.Time

	mu     sync.Mutex
	open   map[int]Event // zone -> running event
	logger Logger

	reporter Reporter
	queue    chan report
	dropped  int
}

// NewRecorder returns a Recorder writing to repo. reporter may be nil.
func NewRecorder(repo *Repository, reporter Reporter, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		repo:     repo,
		now:      time.Now,
		open:     make(map[int]Event),
		logger:   noopLogger{},
		reporter: reporter,
		queue:    make(chan report, queueSize),
	}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(l Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
}

// Dropped returns how many upstream reports were discarded on overflow.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Open returns the running event for zone, if any.
func (r *Recorder) Open(zone int) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.open[zone]
	return e, ok
}

// OnZoneTransition implements irrigation.TransitionSink.
func (r *Recorder) OnZoneTransition(t irrigation.Transition) {
	at := t.At
	if at.IsZero() {
		at = r.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case t.On && t.Reason == irrigation.ReasonExtended:
		r.extendLocked(ctx, t, at)
	case t.On:
		r.startLocked(ctx, t, at)
	default:
		r.stopLocked(ctx, t, at)
	}
}

func (r *Recorder) startLocked(ctx context.Context, t irrigation.Transition, at time.Time) {
	if prev, ok := r.open[t.Zone]; ok {
		// A start while a row is still open means a stop was missed.
		r.closeLocked(ctx, prev, at, int(at.Sub(prev.StartTime).Seconds()), StatusInterrupted, "superseded")
	}

	e := Event{
		ID:                 uuid.NewString(),
		ZoneID:             t.Zone,
		StartTime:          at.UTC(),
		PlannedDurationMin: t.DurationMin,
		Type:               eventType(t.Origin),
		ScheduleID:         t.ScheduleID,
		ScheduleKind:       t.Kind.String(),
		Status:             StatusRunning,
	}
	if err := r.repo.Insert(ctx, e); err != nil {
		r.logger.Error("recording watering start failed", "zone", t.Zone, "error", err)
		return
	}
	r.open[t.Zone] = e
	r.enqueueLocked(report{event: e})
}

func (r *Recorder) extendLocked(ctx context.Context, t irrigation.Transition, at time.Time) {
	e, ok := r.open[t.Zone]
	if !ok {
		r.startLocked(ctx, t, at)
		return
	}
	if err := r.repo.UpdatePlanned(ctx, e.ID, t.DurationMin); err != nil {
		r.logger.Error("recording watering extension failed", "zone", t.Zone, "error", err)
		return
	}
	e.PlannedDurationMin = t.DurationMin
	r.open[t.Zone] = e
}

func (r *Recorder) stopLocked(ctx context.Context, t irrigation.Transition, at time.Time) {
	e, ok := r.open[t.Zone]
	if !ok {
		r.logger.Debug("stop without open watering event", "zone", t.Zone, "reason", t.Reason.String())
		return
	}
	status := StatusInterrupted
	if t.Reason == irrigation.ReasonCompleted {
		status = StatusCompleted
	}
	r.closeLocked(ctx, e, at, int(t.Elapsed.Seconds()), status, t.Reason.String())
}

func (r *Recorder) closeLocked(ctx context.Context, e Event, end time.Time, actualSec int, status, reason string) {
	delete(r.open, e.ZoneID)
	actualSec = max(actualSec, 0)
	if err := r.repo.Close(ctx, e.ID, end, actualSec, status, reason); err != nil {
		r.logger.Error("recording watering stop failed", "zone", e.ZoneID, "error", err)
		return
	}
	end = end.UTC()
	e.EndTime = &end
	e.ActualDurationSec = actualSec
	e.Status = status
	e.StopReason = reason
	r.enqueueLocked(report{event: e, complete: true})
}

func (r *Recorder) enqueueLocked(rep report) {
	if r.reporter == nil {
		return
	}
	select {
	case r.queue <- rep:
	default:
		r.dropped++
		r.logger.Warn("event report queue full, dropping report", "event_id", rep.event.ID, "zone", rep.event.ZoneID)
	}
}

// Run sends queued reports until ctx is cancelled, then flushes what is
// left for up to drainTimeout. Without a reporter it returns immediately.
func (r *Recorder) Run(ctx context.Context) {
	if r.reporter == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx)
			return
		case rep := <-r.queue:
			r.send(ctx, rep)
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	r.Flush(flushCtx)
}

// Flush sends the reports already queued and returns how many were sent.
// It stops early when ctx ends. The host calls it after the shutdown stop
// so the final completions reach the server.
func (r *Recorder) Flush(ctx context.Context) int {
	if r.reporter == nil {
		return 0
	}
	sent := 0
	for ctx.Err() == nil {
		select {
		case rep := <-r.queue:
			r.send(ctx, rep)
			sent++
		default:
			return sent
		}
	}
	return sent
}

func (r *Recorder) send(ctx context.Context, rep report) {
	sendCtx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	var err error
	if rep.complete {
		err = r.reporter.ReportCompletion(sendCtx, rep.event)
	} else {
		err = r.reporter.ReportStart(sendCtx, rep.event)
	}
	if err != nil {
		r.mu.Lock()
		l := r.logger
		r.mu.Unlock()
		l.Warn("event report failed", "event_id", rep.event.ID, "complete", rep.complete, "error", err)
	}
}

func eventType(o irrigation.Origin) string {
	if o == irrigation.OriginScheduled {
		return TypeScheduled
	}
	return TypeManual
}
