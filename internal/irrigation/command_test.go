package irrigation

import (
	"errors"
	"testing"
	"time"
)

// ─── Execute ────────────────────────────────────────────────────────────────

func TestExecute_StartStop(t *testing.T) {
	engine, _, sink := setupEngine(t, monday0600)

	res, err := engine.Execute(CmdStartZone{Zone: 3, Minutes: 10})
	if err != nil {
		t.Fatalf("Execute(start) error = %v", err)
	}
	if res.Command != "start_zone" || res.Start == nil || res.Start.Outcome != OutcomeStarted {
		t.Errorf("Execute(start) = %+v", res)
	}

	res, err = engine.Execute(CmdStopZone{Zone: 3})
	if err != nil {
		t.Fatalf("Execute(stop) error = %v", err)
	}
	if res.Message != "Zone 3 stopped" {
		t.Errorf("Message = %q", res.Message)
	}
	if n := len(sink.all()); n != 2 {
		t.Errorf("transitions = %d, want 2", n)
	}
}

func TestExecute_RejectionsAreDistinguishable(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	_, errDisabled := engine.Execute(CmdStartZone{Zone: 12, Minutes: 10})
	_, errDuration := engine.Execute(CmdStartZone{Zone: 1, Minutes: 999})

	if !errors.Is(errDisabled, ErrZoneDisabled) || errors.Is(errDisabled, ErrInvalidDuration) {
		t.Errorf("disabled zone error = %v", errDisabled)
	}
	if !errors.Is(errDuration, ErrInvalidDuration) || errors.Is(errDuration, ErrZoneDisabled) {
		t.Errorf("duration error = %v", errDuration)
	}
}

func TestExecute_ScheduleCommands(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	res, err := engine.Execute(CmdAddSchedule{Kind: KindBasic, Zone: 1, DayMask: AllDays, Hour: 6, Minute: 0, DurationMin: 10})
	if err != nil {
		t.Fatalf("Execute(add) error = %v", err)
	}
	id := res.ScheduleID

	if _, err := engine.Execute(CmdEnableSchedule{ID: id, Enabled: false}); err != nil {
		t.Fatalf("Execute(enable) error = %v", err)
	}
	if s, _ := engine.Schedule(id); s.Enabled {
		t.Error("schedule still enabled")
	}

	if _, err := engine.Execute(CmdRemoveSchedule{ID: id}); err != nil {
		t.Fatalf("Execute(remove) error = %v", err)
	}
	if _, err := engine.Execute(CmdRemoveSchedule{ID: id}); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("second remove error = %v, want ErrScheduleNotFound", err)
	}

	if _, err := engine.Execute(CmdAddSchedule{Kind: KindNone, Zone: 1, DayMask: AllDays, DurationMin: 5}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("add without kind error = %v, want ErrInvalidSchedule", err)
	}
}

func TestExecute_ReplaceAISchedules(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	basic, _ := engine.AddBasic(1, AllDays, 5, 0, 10)
	engine.AddAI(2, AllDays, 6, 0, 10, 0)
	engine.AddAI(3, AllDays, 7, 0, 10, 0)

	res, err := engine.Execute(CmdReplaceAISchedules{Entries: []CmdAddSchedule{
		{Zone: 4, DayMask: AllDays, Hour: 21, Minute: 0, DurationMin: 15},
		{Zone: 15, DayMask: AllDays, Hour: 21, Minute: 30, DurationMin: 15},
		{Zone: 5, DayMask: AllDays, Hour: 22, Minute: 0, DurationMin: 15, ExpiresAt: monday0600.Add(18 * time.Hour).Unix()},
	}})
	if !errors.Is(err, ErrZoneDisabled) {
		t.Errorf("Execute(replace) error = %v, want the zone 15 rejection", err)
	}
	if res.Removed != 2 || len(res.ScheduleIDs) != 2 {
		t.Errorf("Execute(replace) = %+v", res)
	}

	counts := engine.ScheduleCounts()
	if counts.Basic != 1 || counts.AI != 2 {
		t.Errorf("ScheduleCounts() = %+v", counts)
	}
	if _, ok := engine.Schedule(basic); !ok {
		t.Error("basic schedule removed by AI replace")
	}
	for _, s := range engine.Schedules() {
		if s.Zone == 5 && s.ExpiresAt == 0 {
			t.Error("AI expiry not carried")
		}
	}
}

func TestExecute_RainCommands(t *testing.T) {
	engine, _, sink := setupEngine(t, monday0600)

	res, err := engine.Execute(CmdSetRainDelay{Minutes: 120})
	if err != nil {
		t.Fatalf("Execute(rain delay) error = %v", err)
	}
	if !res.RainDelayEnd.Equal(monday0600.Add(2 * time.Hour)) {
		t.Errorf("RainDelayEnd = %v", res.RainDelayEnd)
	}
	if _, err := engine.Execute(CmdSetRainDelay{Minutes: 0}); !errors.Is(err, ErrInvalidRainDelay) {
		t.Errorf("zero rain delay error = %v", err)
	}

	engine.StartManual(2, 10)
	if _, err := engine.Execute(CmdCancelZoneForRain{Zone: 2}); err != nil {
		t.Fatalf("Execute(rain cancel) error = %v", err)
	}
	last := sink.all()[1]
	if last.Reason != ReasonRainCancelled || last.On {
		t.Errorf("rain cancel transition = %+v", last)
	}
	if _, err := engine.Execute(CmdCancelZoneForRain{Zone: 2}); !errors.Is(err, ErrZoneNotActive) {
		t.Errorf("rain cancel on idle zone error = %v", err)
	}

	if _, err := engine.Execute(CmdClearRainDelay{}); err != nil {
		t.Fatalf("Execute(clear rain) error = %v", err)
	}
	if active, _ := engine.RainDelay(); active {
		t.Error("rain delay still active")
	}
}

func TestExecute_Settings(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	if _, err := engine.Execute(CmdSetSchedulingEnabled{Enabled: false}); err != nil {
		t.Fatalf("Execute(scheduling) error = %v", err)
	}
	if engine.Configuration().SchedulingEnabled() {
		t.Error("scheduling still enabled")
	}

	halfHours := 4
	if _, err := engine.Execute(CmdUpdateSettings{Update: SettingsUpdate{TimezoneOffsetHalfHours: &halfHours}}); err != nil {
		t.Fatalf("Execute(settings) error = %v", err)
	}
	if engine.Configuration().TimezoneOffsetHalfHours() != 4 {
		t.Error("timezone not updated")
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	if _, err := engine.Execute(nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Execute(nil) error = %v, want ErrUnknownCommand", err)
	}
}

// ─── Status ─────────────────────────────────────────────────────────────────

func TestStatus_ZoneStates(t *testing.T) {
	engine, clock, _ := setupEngine(t, monday0600)

	engine.AddBasic(4, AllDays, 20, 0, 10)
	engine.StartManual(1, 10)
	engine.StartManual(2, 10)
	engine.CancelZoneForRain(2)
	clock.Advance(time.Minute)

	st := engine.Status()
	if len(st.Zones) != 8 {
		t.Fatalf("Zones len = %d, want 8", len(st.Zones))
	}
	if st.Zones[0].State != StateRunning || st.Zones[0].RemainingSeconds != 540 {
		t.Errorf("zone 1 = %+v", st.Zones[0])
	}
	if st.Zones[1].State != StateRainCancelled {
		t.Errorf("zone 2 = %+v, want rain_cancelled", st.Zones[1])
	}
	if st.Zones[3].State != StateScheduled {
		t.Errorf("zone 4 = %+v, want scheduled", st.Zones[3])
	}
	if st.Zones[4].State != StateIdle {
		t.Errorf("zone 5 = %+v, want idle", st.Zones[4])
	}
	if st.NextEvent == nil || st.NextEvent.Zone != 4 {
		t.Errorf("NextEvent = %+v", st.NextEvent)
	}
	if !st.ClockValid || st.Timestamp != monday0600.Add(time.Minute).Unix() {
		t.Errorf("Timestamp = %d, ClockValid = %v", st.Timestamp, st.ClockValid)
	}

	engine.SetRainDelay(60)
	st = engine.Status()
	if !st.RainDelayActive || st.Zones[4].State != StateRainDelayed {
		t.Errorf("rain delay status = %v, zone 5 = %v", st.RainDelayActive, st.Zones[4].State)
	}
	if st.Zones[0].State != StateRunning {
		t.Error("running zone reported as rain delayed")
	}
}

func TestNextEvent(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	if _, ok := engine.NextEvent(); ok {
		t.Error("NextEvent() on empty table")
	}

	engine.AddBasic(1, AllDays, 5, 0, 10) // already passed today
	late, _ := engine.AddBasic(2, AllDays, 21, 0, 10)
	early, _ := engine.AddBasic(3, AllDays, 7, 30, 10)
	engine.AddBasic(4, DayBit((monday0600.Weekday()+1)%7), 6, 30, 10) // tomorrow only

	next, ok := engine.NextEvent()
	if !ok || next.ScheduleID != early {
		t.Fatalf("NextEvent() = %+v, %v; want schedule %d", next, ok, early)
	}
	if !next.At.Equal(monday0600.Add(90 * time.Minute)) {
		t.Errorf("At = %v", next.At)
	}

	engine.RemoveSchedule(early)
	if next, _ = engine.NextEvent(); next.ScheduleID != late {
		t.Errorf("NextEvent() = %d, want %d", next.ScheduleID, late)
	}
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

func TestSnapshotRestore(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	engine.AddBasic(1, AllDays, 6, 0, 10)
	ai, _ := engine.AddAI(2, AllDays, 7, 0, 10, monday0600.Add(time.Hour).Unix())
	stale, _ := engine.AddAI(3, AllDays, 8, 0, 10, monday0600.Add(time.Hour).Unix())
	engine.RemoveSchedule(stale)
	engine.SetRainDelay(30)
	engine.SetSchedulingEnabled(false)
	snap := engine.Snapshot()

	restored, clock, _ := setupEngine(t, monday0600)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	got := restored.Schedules()
	if len(got) != 2 || got[1].ID != ai {
		t.Fatalf("Schedules() = %+v", got)
	}
	if restored.Configuration().SchedulingEnabled() {
		t.Error("scheduling flag not restored")
	}
	if active, _ := restored.RainDelay(); !active {
		t.Error("rain delay not restored")
	}

	id, _ := restored.AddBasic(5, AllDays, 9, 0, 10)
	if id != snap.NextID {
		t.Errorf("next id = %d, want %d", id, snap.NextID)
	}

	// Restoring after the AI expiry drops the stale entry.
	clock.Advance(2 * time.Hour)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, ok := restored.Schedule(ai); ok {
		t.Error("expired AI entry restored")
	}
}

func TestRestore_RejectsDuplicateIDs(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	snap := Snapshot{Schedules: []Schedule{
		{ID: 4, Zone: 1, DayMask: AllDays, DurationMin: 5, Kind: KindBasic},
		{ID: 4, Zone: 2, DayMask: AllDays, DurationMin: 5, Kind: KindBasic},
	}}
	if err := engine.Restore(snap); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("Restore() error = %v, want ErrInvalidSchedule", err)
	}
}

func TestRevision_ChangesOnMutation(t *testing.T) {
	engine, _, _ := setupEngine(t, monday0600)

	r0 := engine.Revision()
	engine.AddBasic(1, AllDays, 6, 0, 10)
	r1 := engine.Revision()
	if r1 == r0 {
		t.Error("AddBasic did not change revision")
	}
	engine.StartManual(1, 5)
	if engine.Revision() != r1 {
		t.Error("zone runs should not change the persisted revision")
	}
}
