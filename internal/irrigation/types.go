package irrigation

import (
	"fmt"
	"time"
)

// Capacity limits of the engine tables.
const (
	// MaxSchedules is the number of slots in the schedule table.
	MaxSchedules = 48

	// DefaultMaxActiveZones is how many zones the valve hardware can power at once.
	DefaultMaxActiveZones = 2

	// AllDays is a day mask selecting every weekday.
	AllDays uint8 = 0x7F

	// MaxRainDelayMinutes is the longest rain delay accepted (30 days).
	MaxRainDelayMinutes = 30 * 24 * 60
)

// ScheduleKind distinguishes locally defined schedules from server-pushed ones.
type ScheduleKind uint8

const (
	// KindNone marks a manual run that no schedule triggered.
	KindNone ScheduleKind = iota
	// KindBasic is a local recurring rule with no expiry.
	KindBasic
	// KindAI is a server-pushed rule that may carry an expiry.
	KindAI
)

// String returns the wire name of the kind.
func (k ScheduleKind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindAI:
		return "ai"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ScheduleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ScheduleKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "basic":
		*k = KindBasic
	case "ai":
		*k = KindAI
	case "none", "":
		*k = KindNone
	default:
		return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, b)
	}
	return nil
}

// Origin records who asked for a zone run.
type Origin uint8

const (
	OriginManual Origin = iota + 1
	OriginScheduled
)

func (o Origin) String() string {
	if o == OriginScheduled {
		return "scheduled"
	}
	return "manual"
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ZoneState is the status of a zone as reported to the outside.
//
// Only Running is a live state of an active slot. Completed and
// RainCancelled are annotations written as a run ends; RainDelayed is
// reported for idle zones while a rain delay suppresses schedules.
type ZoneState uint8

const (
	StateIdle ZoneState = iota
	StateScheduled
	StateRunning
	StateCompleted
	StateRainDelayed
	StateRainCancelled
)

var zoneStateNames = [...]string{
	StateIdle:          "idle",
	StateScheduled:     "scheduled",
	StateRunning:       "running",
	StateCompleted:     "completed",
	StateRainDelayed:   "rain_delayed",
	StateRainCancelled: "rain_cancelled",
}

func (s ZoneState) String() string {
	if int(s) < len(zoneStateNames) {
		return zoneStateNames[s]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ZoneState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason explains why a zone transition happened.
type Reason uint8

const (
	ReasonStarted Reason = iota + 1
	ReasonExtended
	ReasonCompleted
	ReasonStopped
	ReasonPreempted
	ReasonRainCancelled
	ReasonDisabled
	ReasonShutdown
)

var reasonNames = map[Reason]string{
	ReasonStarted:       "started",
	ReasonExtended:      "extended",
	ReasonCompleted:     "completed",
	ReasonStopped:       "stopped",
	ReasonPreempted:     "preempted",
	ReasonRainCancelled: "rain_cancelled",
	ReasonDisabled:      "disabled",
	ReasonShutdown:      "shutdown",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Schedule is one watering rule in the schedule table.
type Schedule struct {
	ID          uint32       `json:"id"`
	Zone        int          `json:"zone"`
	DayMask     uint8        `json:"days"`
	StartHour   int          `json:"start_hour"`
	StartMinute int          `json:"start_minute"`
	DurationMin int          `json:"duration"`
	Enabled     bool         `json:"enabled"`
	Kind        ScheduleKind `json:"type"`

	// CreatedAt is informational, Unix seconds (0 when the clock was unknown).
	CreatedAt int64 `json:"created"`

	// ExpiresAt is the Unix time after which an AI entry is removed.
	// Zero always means the entry never expires.
	ExpiresAt int64 `json:"expires"`
}

// FiresOn reports whether the day mask selects the given weekday.
func (s Schedule) FiresOn(day time.Weekday) bool {
	return s.DayMask&DayBit(day) != 0
}

// Expired reports whether the entry has an expiry that has been reached.
func (s Schedule) Expired(nowUnix int64) bool {
	return s.ExpiresAt > 0 && nowUnix >= s.ExpiresAt
}

// ScheduleCounts is the number of live entries per kind.
type ScheduleCounts struct {
	Basic int `json:"basic"`
	AI    int `json:"ai"`
	Total int `json:"total"`
}

// ActiveRun is a snapshot of one occupied active-zone slot.
type ActiveRun struct {
	Zone             int          `json:"zone"`
	State            ZoneState    `json:"state"`
	Origin           Origin       `json:"origin"`
	IsScheduled      bool         `json:"is_scheduled"`
	ScheduleID       uint32       `json:"schedule_id"`
	Kind             ScheduleKind `json:"schedule_type"`
	DurationMin      int          `json:"duration_min"`
	RemainingSeconds int          `json:"remaining_seconds"`
}

// Transition is the notification emitted for every zone start, extension
// and stop.
type Transition struct {
	Zone        int
	On          bool
	DurationMin int // planned duration of the run
	Kind        ScheduleKind
	ScheduleID  uint32 // 0 for manual runs
	Origin      Origin
	Reason      Reason

	// ActiveCount is the number of running zones after the transition.
	ActiveCount int

	// At is the wall-clock time of the transition; zero if the clock is invalid.
	At time.Time

	// Elapsed is how long the run lasted, set on stops.
	Elapsed time.Duration
}

// TransitionSink receives zone transitions.
//
// OnZoneTransition is called synchronously while the engine holds its lock.
// Implementations must not call back into the Engine; work that needs engine
// state belongs on the sink's own goroutine.
type TransitionSink interface {
	OnZoneTransition(t Transition)
}

// TransitionSinkFunc adapts a function to TransitionSink.
type TransitionSinkFunc func(t Transition)

// OnZoneTransition implements TransitionSink.
func (f TransitionSinkFunc) OnZoneTransition(t Transition) {
	f(t)
}

// Configuration is the read-only view of the limits the engine enforces.
type Configuration interface {
	IsZoneEnabled(zone int) bool
	MaxEnabledZones() int
	MaxRunMinutes() int
	PumpSafety() bool
	TimezoneOffsetHalfHours() int
	DaylightSavingActive() bool
	SchedulingEnabled() bool
}

// SettingsUpdater is a Configuration that can be changed at runtime.
type SettingsUpdater interface {
	Configuration
	Apply(u SettingsUpdate) error
}

// Clock supplies wall-clock and monotonic time.
type Clock interface {
	// NowUTC returns the current time and whether the time source is trusted.
	NowUTC() (time.Time, bool)

	// Monotonic returns time elapsed since an arbitrary fixed origin.
	Monotonic() time.Duration
}

// Logger defines the logging interface used by the Engine.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
