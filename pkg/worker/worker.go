package worker

import (
	"context"
	"errors"

	"github.com/petrijr/orchid/internal/taskqueue"
	"github.com/petrijr/orchid/pkg/api"
)

// Worker pulls tasks from a Queue and dispatches them to an Engine: replay
// passes, activity executions, and timer firings. It holds no state of its
// own, so any number of workers may share one queue.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false, err != nil: no task processed (context cancelled
//     before a task was obtained, or the dequeue itself failed)
//   - processed == true: a task was processed; err indicates whether the
//     handler succeeded.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeOrchestration:
		return true, w.engine.RunOrchestrationPass(ctx, task.InstanceID)

	case taskqueue.TaskTypeActivity:
		return true, w.engine.RunActivity(ctx, api.ActivityInvocation{
			InstanceID:    task.InstanceID,
			TaskID:        task.TaskID,
			Name:          task.Name,
			Input:         task.Input,
			Attempt:       task.Attempt,
			MaxAttempts:   task.MaxAttempts,
			RetryInterval: task.RetryInterval,
		})

	case taskqueue.TaskTypeTimer:
		return true, w.engine.FireTimer(ctx, task.InstanceID, task.TaskID, task.FireAt)

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until the context is cancelled. Task handler errors are
// reported to onError (if non-nil) and do not stop the loop.
func (w *Worker) Run(ctx context.Context, onError func(error)) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if processed && onError != nil {
				onError(err)
			}
			continue
		}
	}
}
