package orchid

import (
	"database/sql"

	"github.com/petrijr/orchid/internal/engine"
	"github.com/petrijr/orchid/internal/taskqueue"
	workerpkg "github.com/petrijr/orchid/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
//
// For now, we only provide a SQLite-backed bundle.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported for now; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Orchestration instances, event histories, and
// queued tasks are persisted in the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:orchid.db?_journal=WAL")
//	bundle, err := orchid.NewSQLiteBundle(db, reg)
//	// start orchestrations via bundle.Engine
//	// drive them with bundle.Worker.Run
func NewSQLiteBundle(db *sql.DB, reg *Registry) (*WorkerBundle, error) {
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewSQLiteEngine(db, reg, q)
	if err != nil {
		return nil, err
	}

	w := workerpkg.New(eng, q)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
