package irrigation

import (
	"errors"
	"fmt"
	"time"
)

// Command is a typed engine operation. Transports parse their wire formats
// into one of the Cmd types and hand it to Engine.Execute.
type Command interface {
	commandName() string
}

// CmdStartZone starts (or extends) a manual run.
type CmdStartZone struct {
	Zone    int
	Minutes int
}

// CmdStopZone stops a running zone.
type CmdStopZone struct {
	Zone int
}

// CmdAddSchedule adds one schedule entry. Kind must be KindBasic or KindAI;
// ExpiresAt only applies to AI entries.
type CmdAddSchedule struct {
	Kind        ScheduleKind
	Zone        int
	DayMask     uint8
	Hour        int
	Minute      int
	DurationMin int
	ExpiresAt   int64
}

// CmdRemoveSchedule removes one entry.
type CmdRemoveSchedule struct {
	ID uint32
}

// CmdEnableSchedule enables or disables one entry.
type CmdEnableSchedule struct {
	ID      uint32
	Enabled bool
}

// CmdClearAISchedules removes every AI entry.
type CmdClearAISchedules struct{}

// CmdReplaceAISchedules clears the AI entries and loads a fresh batch.
type CmdReplaceAISchedules struct {
	Entries []CmdAddSchedule
}

// CmdSetRainDelay starts a rain delay of Minutes from now.
type CmdSetRainDelay struct {
	Minutes int
}

// CmdClearRainDelay ends any rain delay.
type CmdClearRainDelay struct{}

// CmdCancelZoneForRain stops a running zone because of rain.
type CmdCancelZoneForRain struct {
	Zone int
}

// CmdSetSchedulingEnabled toggles automatic schedule firing.
type CmdSetSchedulingEnabled struct {
	Enabled bool
}

// CmdUpdateSettings changes runtime settings.
type CmdUpdateSettings struct {
	Update SettingsUpdate
}

func (CmdStartZone) commandName() string            { return "start_zone" }
func (CmdStopZone) commandName() string             { return "stop_zone" }
func (CmdAddSchedule) commandName() string          { return "add_schedule" }
func (CmdRemoveSchedule) commandName() string       { return "remove_schedule" }
func (CmdEnableSchedule) commandName() string       { return "enable_schedule" }
func (CmdClearAISchedules) commandName() string     { return "clear_ai_schedules" }
func (CmdReplaceAISchedules) commandName() string   { return "replace_ai_schedules" }
func (CmdSetRainDelay) commandName() string         { return "rain_delay" }
func (CmdClearRainDelay) commandName() string       { return "clear_rain_delay" }
func (CmdCancelZoneForRain) commandName() string    { return "rain_cancel" }
func (CmdSetSchedulingEnabled) commandName() string { return "set_scheduling" }
func (CmdUpdateSettings) commandName() string       { return "update_settings" }

// CommandName returns the short name of a command for logs and replies.
func CommandName(cmd Command) string {
	if cmd == nil {
		return "unknown"
	}
	return cmd.commandName()
}

// Result is the reply to an executed command.
type Result struct {
	Command string `json:"command"`
	Message string `json:"message"`

	Start        *StartResult `json:"start,omitempty"`
	ScheduleID   uint32       `json:"schedule_id,omitempty"`
	ScheduleIDs  []uint32     `json:"schedule_ids,omitempty"`
	Removed      int          `json:"removed,omitempty"`
	RainDelayEnd time.Time    `json:"rain_delay_end,omitzero"`
}

// Execute runs a command atomically under the engine lock.
//
// For CmdReplaceAISchedules the AI entries are always cleared first; entries
// that fail admission are skipped and their errors joined into the returned
// error while Result still lists the ids that were added.
func (e *Engine) Execute(cmd Command) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Result{Command: CommandName(cmd)}
	switch c := cmd.(type) {
	case CmdStartZone:
		start, err := e.startLocked(c.Zone, c.Minutes, OriginManual, 0, KindNone)
		if err != nil {
			return res, err
		}
		res.Start = &start
		res.Message = start.Message

	case CmdStopZone:
		if err := e.stopZoneLocked(c.Zone, ReasonStopped, StateIdle); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Zone %d stopped", c.Zone)

	case CmdAddSchedule:
		id, err := e.addFromCommandLocked(c)
		if err != nil {
			return res, err
		}
		res.ScheduleID = id
		res.Message = fmt.Sprintf("Schedule %d added", id)

	case CmdRemoveSchedule:
		if err := e.removeScheduleLocked(c.ID); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Schedule %d removed", c.ID)

	case CmdEnableSchedule:
		if err := e.enableScheduleLocked(c.ID, c.Enabled); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Schedule %d %s", c.ID, enabledWord(c.Enabled))

	case CmdClearAISchedules:
		res.Removed = e.clearKindLocked(KindAI)
		res.Message = fmt.Sprintf("Cleared %d AI schedules", res.Removed)

	case CmdReplaceAISchedules:
		res.Removed = e.clearKindLocked(KindAI)
		var errs []error
		for _, entry := range c.Entries {
			entry.Kind = KindAI
			id, err := e.addFromCommandLocked(entry)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			res.ScheduleIDs = append(res.ScheduleIDs, id)
		}
		res.Message = fmt.Sprintf("Loaded %d of %d AI schedules", len(res.ScheduleIDs), len(c.Entries))
		if len(errs) > 0 {
			return res, errors.Join(errs...)
		}

	case CmdSetRainDelay:
		end, err := e.setRainDelayLocked(c.Minutes)
		if err != nil {
			return res, err
		}
		res.RainDelayEnd = end
		res.Message = fmt.Sprintf("Rain delay set for %d minutes", c.Minutes)

	case CmdClearRainDelay:
		e.clearRainDelayLocked()
		res.Message = "Rain delay cleared"

	case CmdCancelZoneForRain:
		if err := e.cancelForRainLocked(c.Zone); err != nil {
			return res, err
		}
		res.Message = fmt.Sprintf("Zone %d cancelled for rain", c.Zone)

	case CmdSetSchedulingEnabled:
		enabled := c.Enabled
		if err := e.updateSettingsLocked(SettingsUpdate{SchedulingEnabled: &enabled}); err != nil {
			return res, err
		}
		res.Message = "Scheduling " + enabledWord(c.Enabled)

	case CmdUpdateSettings:
		if err := e.updateSettingsLocked(c.Update); err != nil {
			return res, err
		}
		res.Message = "Settings updated"

	default:
		return res, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return res, nil
}

func (e *Engine) addFromCommandLocked(c CmdAddSchedule) (uint32, error) {
	switch c.Kind {
	case KindBasic:
		return e.addScheduleLocked(KindBasic, c.Zone, c.DayMask, c.Hour, c.Minute, c.DurationMin, 0)
	case KindAI:
		return e.addScheduleLocked(KindAI, c.Zone, c.DayMask, c.Hour, c.Minute, c.DurationMin, c.ExpiresAt)
	default:
		return 0, fmt.Errorf("%w: schedule type %q", ErrInvalidSchedule, c.Kind.String())
	}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
