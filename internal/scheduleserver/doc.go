// Package scheduleserver is the client for the upstream schedule server.
//
// The server plans watering per date. Sync pulls the next few days and
// loads them into the engine as AI schedule entries, each bound to its
// date's weekday and expiring at the end of that local date. Event
// starts and completions are reported back through EventReporter, which
// the event log drives from its own queue.
package scheduleserver
