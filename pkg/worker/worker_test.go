package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/orchid/internal/taskqueue"
	"github.com/petrijr/orchid/pkg/api"
)

// recordingEngine captures which Engine method each task type dispatches to.
type recordingEngine struct {
	passes      []string
	invocations []api.ActivityInvocation
	timers      []int

	passErr error
}

var _ api.Engine = (*recordingEngine)(nil)

func (e *recordingEngine) Start(ctx context.Context, name string, input any) (*api.OrchestrationInstance, error) {
	return nil, errors.New("not implemented")
}

func (e *recordingEngine) RaiseEvent(ctx context.Context, instanceID, eventName string, payload any) error {
	return errors.New("not implemented")
}

func (e *recordingEngine) Terminate(ctx context.Context, instanceID, reason string) error {
	return errors.New("not implemented")
}

func (e *recordingEngine) GetInstance(ctx context.Context, id string) (*api.OrchestrationInstance, error) {
	return nil, errors.New("not implemented")
}

func (e *recordingEngine) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.OrchestrationInstance, error) {
	return nil, errors.New("not implemented")
}

func (e *recordingEngine) GetHistory(ctx context.Context, id string) ([]api.HistoryEvent, error) {
	return nil, errors.New("not implemented")
}

func (e *recordingEngine) RunOrchestrationPass(ctx context.Context, instanceID string) error {
	e.passes = append(e.passes, instanceID)
	return e.passErr
}

func (e *recordingEngine) RunActivity(ctx context.Context, inv api.ActivityInvocation) error {
	e.invocations = append(e.invocations, inv)
	return nil
}

func (e *recordingEngine) FireTimer(ctx context.Context, instanceID string, timerID int, fireAt time.Time) error {
	e.timers = append(e.timers, timerID)
	return nil
}

func TestProcessOneDispatchesOrchestration(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeOrchestration,
		InstanceID: "i-1",
	}))

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []string{"i-1"}, eng.passes)
}

func TestProcessOneDispatchesActivity(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{
		Type:          taskqueue.TaskTypeActivity,
		InstanceID:    "i-1",
		TaskID:        4,
		Name:          "Charge",
		Input:         []byte(`{"amount":100}`),
		Attempt:       2,
		MaxAttempts:   3,
		RetryInterval: 50 * time.Millisecond,
	}))

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, eng.invocations, 1)
	inv := eng.invocations[0]
	assert.Equal(t, "i-1", inv.InstanceID)
	assert.Equal(t, 4, inv.TaskID)
	assert.Equal(t, "Charge", inv.Name)
	assert.Equal(t, `{"amount":100}`, string(inv.Input))
	assert.Equal(t, 2, inv.Attempt)
	assert.Equal(t, 3, inv.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, inv.RetryInterval)
}

func TestProcessOneDispatchesTimer(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeTimer,
		InstanceID: "i-1",
		TaskID:     2,
		FireAt:     time.Now(),
	}))

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []int{2}, eng.timers)
}

func TestProcessOneUnknownTaskType(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{Type: "bogus", InstanceID: "i-1"}))

	processed, err := w.ProcessOne(ctx)
	assert.True(t, processed)
	require.Error(t, err)
}

func TestProcessOneContextCancelled(t *testing.T) {
	eng := &recordingEngine{}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := w.ProcessOne(ctx)
	assert.False(t, processed)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunReportsHandlerErrorsAndKeepsGoing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := &recordingEngine{passErr: errors.New("pass failed")}
	q := taskqueue.NewInMemoryQueue()
	w := New(eng, q)

	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{Type: taskqueue.TaskTypeOrchestration, InstanceID: "i-1"}))
	require.NoError(t, q.Enqueue(ctx, taskqueue.Task{Type: taskqueue.TaskTypeOrchestration, InstanceID: "i-2"}))

	errs := make(chan error, 2)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(err error) {
			errs <- err
		})
	}()

	// Both tasks are processed despite the handler errors.
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.Contains(t, err.Error(), "pass failed")
		case <-time.After(time.Second):
			t.Fatal("worker stopped after a handler error")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}

	assert.Equal(t, []string{"i-1", "i-2"}, eng.passes)
}
