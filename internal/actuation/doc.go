// Package actuation turns engine transitions into valve commands.
//
// The engine reports every zone change through a single
// irrigation.TransitionSink. Fanout delivers it to several sinks in order;
// Driver is always first so the valve moves before anything is recorded.
//
//	valve := actuation.NewMQTTValve(client, topics)
//	driver := actuation.NewDriver(valve, settings)
//	sink := actuation.NewFanout(driver, recorder, bridge, metricsSink)
//	engine := irrigation.NewEngine(settings, clock, sink, opts)
//
// Sinks are called with the engine lock held. They must not call back into
// the engine and should not block on the network for long.
package actuation
