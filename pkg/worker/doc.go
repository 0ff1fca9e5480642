// Package worker provides the background worker implementation used to drive
// orchid orchestrations forward.
//
// Workers consume tasks from a task queue and dispatch them to an engine:
// replay passes for orchestration instances, activity executions, and durable
// timer firings. They are designed to be lightweight and easy to embed in
// existing services, and they can be scaled horizontally for higher
// throughput.
//
// Most applications construct workers via helper functions in the orchid
// package, which wire engines, queues, and observers together with sensible
// defaults.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Polling a task queue for eligible work (timer tasks become eligible at
//     their fire-at time)
//   - Running replay passes through the orchestrator driver via the engine
//   - Executing activity functions and recording their outcomes in history
//
// Workers are long-lived components that typically run in dedicated
// goroutines or processes. Multiple workers can safely operate on the same
// queue; the engine's instance leases guarantee that no two workers replay
// the same instance at once.
//
// # Integration with Engine and Queues
//
// Workers are decoupled from any particular persistence backend. They rely on
// interfaces provided by the engine and task queue layers:
//
//   - The engine encapsulates instance state, history, and replay execution.
//   - The task queue provides delivery of tasks to be performed.
//
// Different backends (e.g. in-memory, SQLite, PostgreSQL) can be plugged in
// through matching queue implementations. This allows workers to be reused
// across different storage technologies.
//
// See the orchid package documentation and examples for typical usage.
package worker
