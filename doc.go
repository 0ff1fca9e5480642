// Package orchid provides a lightweight, embeddable durable-orchestration
// engine for Go.
//
// Orchid is designed for backend services that need reliable asynchronous
// operations, background tasks, or long-lived workflows—without introducing
// external dependencies or heavy infrastructure. Orchestrations are written
// as ordinary Go functions and made durable through event-sourced replay:
// the engine re-runs the function from the start on every invocation and
// feeds previously recorded results back from history, so a process crash
// never loses progress.
//
// # Core Concepts
//
// The Orchid programming model is intentionally small and idiomatic:
//
//  1. Engine
//  2. Worker
//  3. Registry
//  4. OrchestratorFunc and ActivityFunc
//  5. LocalRunner
//
// These components form a complete orchestration system with deterministic
// replay, durable state (when using persistent backends), and a clear mental
// model.
//
// # Engine
//
// The Engine stores orchestration instances, persists their event history,
// schedules work through a task queue, and provides APIs to:
//   - start orchestrations
//   - raise external events into running instances
//   - terminate instances
//   - read instance state and history
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//
// The SQLite backend includes a matching task queue implementation so workers
// can reliably fetch work from the same database.
//
// # Worker
//
// A Worker pulls tasks from a configured queue and dispatches them: replay
// passes for orchestrations, activity executions, and timer firings. Workers
// run asynchronously and can be scaled horizontally.
//
// # Registry
//
// A Registry maps names to orchestrator and activity functions. Registration
// happens once at startup, either directly or through the fluent Builder:
//
//	reg := orchid.NewRegistry()
//	orchid.Define("TransferFunds", transferFunds).
//	    Activity("Withdraw", withdraw).
//	    Activity("Deposit", deposit).
//	    MustRegister(reg)
//
// # OrchestratorFunc and ActivityFunc
//
// An OrchestratorFunc is the replayed body of an orchestration:
//
//	func(ctx *orchid.OrchestrationContext) (any, error)
//
// It must be deterministic: all external effects go through the context
// (CallActivity, CreateTimer, WaitForEvent, ...), which returns futures that
// resolve from history on replay. An ActivityFunc is a single unit of real
// work; it runs exactly once per scheduling, may freely perform I/O, and its
// result is recorded in history.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and worker into a single,
// process-local helper useful for development and unit testing. It is
// intentionally not crash-durable, but it provides the most convenient way
// to run and debug orchestrations during development.
//
// # Summary
//
// Orchid's goal is to give Go developers a durable-execution engine that
// feels like Go: easy to embed, easy to test, deterministic, and without
// operational overhead. Engines manage instance state and history, Workers
// drive execution, the Registry holds definitions, OrchestratorFuncs contain
// the coordination logic, ActivityFuncs contain the real work, and
// LocalRunner provides a fast, developer-friendly runtime.
//
// For examples, see the package-level example tests.
package orchid
