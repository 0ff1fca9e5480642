package orchid

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/orchid/internal/engine"
	"github.com/petrijr/orchid/internal/taskqueue"
	"github.com/petrijr/orchid/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	reg := orchid.NewRegistry()
//	orchid.Define("my-orchestration", body).
//	    Activity("my-activity", act).
//	    MustRegister(reg)
//
//	runner := orchid.NewLocalRunner(reg)
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//
//	inst, _ := runner.Engine.Start(ctx, "my-orchestration", input)
//	inst, _ = orchid.WaitForCompletion(ctx, runner.Engine, inst.ID)
type LocalRunner struct {
	// Engine is the in-memory orchestration engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine and
// an in-memory queue.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(reg *Registry) *LocalRunner {
	q := taskqueue.NewInMemoryQueue()
	eng := engine.NewInMemoryEngine(reg, q)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// NewLocalRunnerWithObserver is NewLocalRunner with an Observer attached to
// the engine.
func NewLocalRunnerWithObserver(reg *Registry, obs Observer) *LocalRunner {
	q := taskqueue.NewInMemoryQueue()
	eng := engine.NewInMemoryEngineWithObserver(reg, q, obs)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("orchid: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				_, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For local runner we treat cancellation as a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// For other errors, log and keep going so a single bad task
					// doesn't kill the worker loop.
					log.Printf("orchid: local runner worker error: %v", err)
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
