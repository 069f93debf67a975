package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// Errors returned by the message parsers.
var (
	ErrUnknownSetting = errors.New("reporting: unknown setting")
	ErrUnknownCommand = errors.New("reporting: unknown command")
	ErrBadPayload     = errors.New("reporting: malformed payload")
)

// Action is what the bridge does with a parsed message besides executing
// an engine command.
type Action int

const (
	ActionExecute Action = iota
	ActionStatus
	ActionRestart
)

// ParseConfigSet parses a config/{key}/set message.
//
// timezone takes hours as a float ("5.5"); the boolean keys take
// true/false/1/0/on/off.
func ParseConfigSet(key, payload string) (irrigation.Command, error) {
	payload = strings.TrimSpace(payload)
	var u irrigation.SettingsUpdate

	switch key {
	case "timezone":
		hours, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q", ErrBadPayload, payload)
		}
		half := int(math.Round(hours * 2))
		u.TimezoneOffsetHalfHours = &half
	case "max_enabled_zones":
		n, err := parseInt(key, payload)
		if err != nil {
			return nil, err
		}
		u.MaxEnabledZones = &n
	case "max_zone_run_time":
		n, err := parseInt(key, payload)
		if err != nil {
			return nil, err
		}
		u.MaxRunMinutes = &n
	case "pump_safety":
		b, err := parseBool(key, payload)
		if err != nil {
			return nil, err
		}
		u.PumpSafety = &b
	case "daylight_saving":
		b, err := parseBool(key, payload)
		if err != nil {
			return nil, err
		}
		u.DaylightSaving = &b
	case "scheduling":
		b, err := parseBool(key, payload)
		if err != nil {
			return nil, err
		}
		return irrigation.CmdSetSchedulingEnabled{Enabled: b}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return irrigation.CmdUpdateSettings{Update: u}, nil
}

type startZonePayload struct {
	Zone    int `json:"zone"`
	Minutes int `json:"minutes"`
}

// ParseCommand parses a command/{name} message. Commands that are not
// engine operations (status, restart) return a nil Command and their
// Action. zone_{n} commands come from Home Assistant switches: ON starts
// the zone for switchMinutes, OFF stops it.
func ParseCommand(name, payload string, switchMinutes int) (irrigation.Command, Action, error) {
	payload = strings.TrimSpace(payload)

	switch name {
	case "status":
		return nil, ActionStatus, nil
	case "restart":
		return nil, ActionRestart, nil
	case "rain_delay":
		n, err := parseInt(name, payload)
		if err != nil {
			return nil, 0, err
		}
		return irrigation.CmdSetRainDelay{Minutes: n}, ActionExecute, nil
	case "clear_rain":
		return irrigation.CmdClearRainDelay{}, ActionExecute, nil
	case "enable_schedule":
		return irrigation.CmdSetSchedulingEnabled{Enabled: payload == "true" || payload == "1"}, ActionExecute, nil
	case "start_zone":
		var p startZonePayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, 0, fmt.Errorf("%w: start_zone: %w", ErrBadPayload, err)
		}
		return irrigation.CmdStartZone{Zone: p.Zone, Minutes: p.Minutes}, ActionExecute, nil
	case "stop_zone":
		n, err := parseInt(name, payload)
		if err != nil {
			return nil, 0, err
		}
		return irrigation.CmdStopZone{Zone: n}, ActionExecute, nil
	case "rain_cancel":
		n, err := parseInt(name, payload)
		if err != nil {
			return nil, 0, err
		}
		return irrigation.CmdCancelZoneForRain{Zone: n}, ActionExecute, nil
	}

	if zone, ok := strings.CutPrefix(name, "zone_"); ok {
		n, err := parseInt(name, zone)
		if err != nil {
			return nil, 0, err
		}
		switch strings.ToUpper(payload) {
		case "ON":
			return irrigation.CmdStartZone{Zone: n, Minutes: switchMinutes}, ActionExecute, nil
		case "OFF":
			return irrigation.CmdStopZone{Zone: n}, ActionExecute, nil
		}
		return nil, 0, fmt.Errorf("%w: %s expects ON or OFF, got %q", ErrBadPayload, name, payload)
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// ScheduleEntry is one entry in a schedule/set message.
type ScheduleEntry struct {
	Type      string   `json:"type,omitempty"`
	Zone      int      `json:"zone"`
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	Duration  int      `json:"duration"`
	Expires   int64    `json:"expires,omitempty"`
}

// ScheduleMessage is the JSON body on schedule/set and schedule/ai/set.
type ScheduleMessage struct {
	Command   string          `json:"command"`
	Minutes   int             `json:"minutes,omitempty"`
	Enabled   *bool           `json:"enabled,omitempty"`
	ID        uint32          `json:"id,omitempty"`
	Schedules []ScheduleEntry `json:"schedules,omitempty"`
	ScheduleEntry
}

// ParseScheduleMessage parses a schedule/set (ai false) or schedule/ai/set
// (ai true) body. On the AI topic addSchedule entries default to type ai.
//
//	{"command":"updateSchedule","schedules":[{"zone":1,"days":["mon"],"start_time":"06:30","duration":15}]}
//	{"command":"addSchedule","zone":2,"days":["daily"],"start_time":"21:00","duration":10}
//	{"command":"removeSchedule","id":4}
//	{"command":"enableSchedule","enabled":false}          // whole scheduler
//	{"command":"enableSchedule","id":4,"enabled":true}    // one entry
//	{"command":"rainDelay","minutes":120}
//	{"command":"cancelRain"}
func ParseScheduleMessage(payload []byte, ai bool) (irrigation.Command, error) {
	var msg ScheduleMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	defaultKind := irrigation.KindBasic
	if ai {
		defaultKind = irrigation.KindAI
	}

	switch msg.Command {
	case "updateSchedule":
		entries := make([]irrigation.CmdAddSchedule, 0, len(msg.Schedules))
		for i, e := range msg.Schedules {
			cmd, err := e.command(irrigation.KindAI)
			if err != nil {
				return nil, fmt.Errorf("schedules[%d]: %w", i, err)
			}
			entries = append(entries, cmd)
		}
		return irrigation.CmdReplaceAISchedules{Entries: entries}, nil
	case "addSchedule":
		return msg.ScheduleEntry.command(defaultKind)
	case "removeSchedule":
		if msg.ID == 0 {
			return nil, fmt.Errorf("%w: removeSchedule needs an id", ErrBadPayload)
		}
		return irrigation.CmdRemoveSchedule{ID: msg.ID}, nil
	case "enableSchedule":
		if msg.Enabled == nil {
			return nil, fmt.Errorf("%w: enableSchedule needs enabled", ErrBadPayload)
		}
		if msg.ID != 0 {
			return irrigation.CmdEnableSchedule{ID: msg.ID, Enabled: *msg.Enabled}, nil
		}
		return irrigation.CmdSetSchedulingEnabled{Enabled: *msg.Enabled}, nil
	case "rainDelay":
		return irrigation.CmdSetRainDelay{Minutes: msg.Minutes}, nil
	case "cancelRain":
		return irrigation.CmdClearRainDelay{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}
}

func (e ScheduleEntry) command(defaultKind irrigation.ScheduleKind) (irrigation.CmdAddSchedule, error) {
	kind := defaultKind
	if e.Type != "" {
		if err := kind.UnmarshalText([]byte(e.Type)); err != nil {
			return irrigation.CmdAddSchedule{}, err
		}
	}
	mask, err := irrigation.DayMaskFromNames(e.Days)
	if err != nil {
		return irrigation.CmdAddSchedule{}, err
	}
	hour, minute, err := irrigation.ParseTimeOfDay(e.StartTime)
	if err != nil {
		return irrigation.CmdAddSchedule{}, err
	}
	return irrigation.CmdAddSchedule{
		Kind:        kind,
		Zone:        e.Zone,
		DayMask:     mask,
		Hour:        hour,
		Minute:      minute,
		DurationMin: e.Duration,
		ExpiresAt:   e.Expires,
	}, nil
}

func parseInt(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s expects an integer, got %q", ErrBadPayload, name, s)
	}
	return n, nil
}

func parseBool(name, s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "on":
		return true, nil
	case "false", "0", "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s expects a boolean, got %q", ErrBadPayload, name, s)
}
