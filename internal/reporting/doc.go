// Package reporting is the MQTT face of the irrigation controller.
//
// Inbound, it accepts runtime settings on config/{key}/set, device commands
// on command/{name} and JSON schedule commands on schedule/set and
// schedule/ai/set, turning each into an irrigation.Command. Schedule
// commands are answered with "success" or "error" on the matching result
// topic.
//
// Outbound, it publishes the device status, per-zone status, the schedule
// table, the runtime settings and Home Assistant discovery documents.
// Zone transitions arrive through OnZoneTransition, are queued, and are
// published from the bridge goroutine so the engine lock is never held
// across network I/O.
package reporting
