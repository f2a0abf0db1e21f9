// Package service implements supervision and sequencing of automation
// modules.
//
// Overview
// The Supervisor owns a registry of uniquely named modules, their running
// executions and the cooldown clock. Clients register a Runnable, then ask
// the Supervisor to start it. Only one execution per name may run at a
// time.
//
// A Sequence runs a list of modules one after another against a single
// Supervisor: modules on cooldown are skipped, the environment is prepared,
// the module is started and polled until it ends, then stopped and marked
// completed. A Service wraps a Sequence and re-runs it on a gocron schedule
// in timer mode.
//
// Data flow:
//
//	Service              Sequence                Supervisor           routine
//	   |                    |                        |                   |
//	   | cycle() ---------->| cooldown? ------------>|                   |
//	   |                    | Prepare()              |                   |
//	   |                    | Start(name) ---------->| goroutine ------->| Run/RunLogged
//	   |                    | IsRunning(name) poll ->|                   |
//	   |                    | Stop(name, timeout) -->| cancel, wait ---->| returns
//	   |                    | MarkCompleted(name) -->| store.Save         |
//	   |<-- SequenceDone ---|                        |                   |
//
// Invariants:
//   - Start on a running module is a no-op, the execution id is unchanged.
//   - Every start gets a new context; cancelling an old execution never
//     affects a newer one.
//   - Stop waits at most its timeout. An execution still running afterwards
//     is abandoned and left to notice its cancelled context.
//   - Panics and errors of routines are reported to the module sink and to
//     slog, never to the caller of Start.
//   - A Sequence never runs two modules at once.
package service
