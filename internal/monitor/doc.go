// Package monitor runs the polling loop that keeps a UPS console session
// alive and turns its status replies into alarm decisions.
//
// # Tick
//
// A Loop does all of its work in Tick, called once per interval by Run:
//
//  1. Drain pending controls (start, pause, quit) without blocking
//  2. While paused, publish a snapshot and do no remote I/O
//  3. Reconnect through the session Manager when the session is not alive
//  4. Resync the prompt, then run the status command
//  5. Parse the reply, step the alarm, feed the sink, the ramp-down output
//     and the audit log, then publish a snapshot
//
// A failed round trip never produces a reading. The session is marked dead,
// the failure is counted, and the next tick reconnects. After a configurable
// number of consecutive failures the link is reported lost.
//
// # Snapshots
//
// Only the goroutine running the loop touches the session and the alarm
// state. Everyone else sees Snapshot values, either pushed through
// Deps.Publish or read from a Store.
package monitor
