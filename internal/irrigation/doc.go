// Package irrigation is the schedule and zone execution engine of the
// irrigation controller.
//
// It owns two fixed-capacity tables: the schedule table (basic and AI
// watering rules) and the active-zone tracker (the zones currently powered,
// bounded by the valve hardware). A host poll loop drives it; every start,
// extension and stop is reported to an injected TransitionSink, which is the
// only way anything leaves the engine.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                   Engine (engine.go)                      │
//	│                                                           │
//	│  Tick() ──▶ ProcessActiveZones()  (durations elapsed)     │
//	│        └──▶ CheckAndExecuteSchedules()                    │
//	│               1. validate clock                           │
//	│               2. UTC ─▶ local (half-hour offset + DST)    │
//	│               3. expire AI entries                        │
//	│               4. gate: scheduling off / rain delay        │
//	│               5. exact-minute match, slot order           │
//	│               6. admit via conflict resolver              │
//	│                                                           │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────┐   │
//	│  │ Schedule     │   │ Active-zone  │   │  Conflict    │   │
//	│  │ table (48)   │   │ tracker (N)  │◀──│  resolver    │   │
//	│  └──────────────┘   └──────┬───────┘   └──────────────┘   │
//	└────────────────────────────┼──────────────────────────────┘
//	                             ▼
//	                  TransitionSink.OnZoneTransition
//	             (valves, event log, MQTT, metrics, WebSocket)
//
// # Conflict resolution
//
// When every active slot is taken, the run with the least remaining time is
// stopped (reason Preempted) and the new zone takes its slot. A start for a
// zone that is already running extends it instead of taking a second slot.
//
// # Thread Safety
//
// All Engine methods are serialised by one mutex. Sinks run under that mutex
// and must not call back into the Engine.
//
// # Usage
//
//	settings := irrigation.NewSettings(cfg.Irrigation)
//	engine := irrigation.NewEngine(settings, irrigation.NewSystemClock(), sink, irrigation.Options{
//	    ZoneCount:      cfg.Irrigation.ZoneCount,
//	    MaxActiveZones: cfg.Irrigation.MaxActiveZones,
//	    Logger:         log,
//	})
//
//	id, err := engine.AddBasic(3, irrigation.AllDays, 6, 15, 10)
//	...
//	for range ticker.C {
//	    engine.Tick()
//	}
package irrigation
