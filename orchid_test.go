package orchid_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	orchid "github.com/petrijr/orchid"
)

func startedRunner(t *testing.T, reg *orchid.Registry) *orchid.LocalRunner {
	t.Helper()
	runner := orchid.NewLocalRunner(reg)
	require.NoError(t, runner.StartWorkers(context.Background(), 2))
	t.Cleanup(runner.Stop)
	return runner
}

func waitDone(t *testing.T, eng orchid.Engine, id string) *orchid.OrchestrationInstance {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inst, err := orchid.WaitForCompletion(ctx, eng, id)
	require.NoError(t, err)
	return inst
}

func TestLocalRunnerHelloWorld(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Hello", func(ctx *orchid.OrchestrationContext) (any, error) {
		out, err := ctx.CallActivity("SayHello", "World").Await()
		if err != nil {
			return nil, err
		}
		return out, nil
	}).Activity("SayHello", func(ctx context.Context, input json.RawMessage) (any, error) {
		var name string
		if err := json.Unmarshal(input, &name); err != nil {
			return nil, err
		}
		return "Hello, " + name + "!", nil
	}).MustRegister(reg)

	runner := startedRunner(t, reg)

	inst, err := orchid.Start(context.Background(), runner.Engine, "Hello", "World")
	require.NoError(t, err)

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)

	var greeting string
	require.NoError(t, orchid.Output(final, &greeting))
	assert.Equal(t, "Hello, World!", greeting)
}

func TestLocalRunnerChainedActivities(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Chain", func(ctx *orchid.OrchestrationContext) (any, error) {
		total := 0
		for i := 1; i <= 3; i++ {
			out, err := ctx.CallActivity("Add", map[string]int{"base": total, "n": i}).Await()
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(out, &total); err != nil {
				return nil, err
			}
		}
		return total, nil
	}).Activity("Add", func(ctx context.Context, input json.RawMessage) (any, error) {
		var in struct{ Base, N int }
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return in.Base + in.N, nil
	}).MustRegister(reg)

	runner := startedRunner(t, reg)

	inst, err := orchid.Start(context.Background(), runner.Engine, "Chain", nil)
	require.NoError(t, err)

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)

	var total int
	require.NoError(t, orchid.Output(final, &total))
	assert.Equal(t, 6, total)
}

func TestLocalRunnerSelectRace(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Race", func(ctx *orchid.OrchestrationContext) (any, error) {
		fast := ctx.CallActivity("Sleep", 5)
		slow := ctx.CallActivity("Sleep", 150)

		winner, pos, rest := ctx.SelectAll(fast, slow).Await()
		if winner.Err != nil {
			return nil, winner.Err
		}

		// Drain the loser so the pass stays deterministic across replays.
		results := ctx.JoinAll(rest...).Await()
		for _, r := range results {
			if r.Err != nil {
				return nil, r.Err
			}
		}
		return pos, nil
	}).Activity("Sleep", func(ctx context.Context, input json.RawMessage) (any, error) {
		var ms int
		if err := json.Unmarshal(input, &ms); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms, nil
	}).MustRegister(reg)

	runner := startedRunner(t, reg)

	inst, err := orchid.Start(context.Background(), runner.Engine, "Race", nil)
	require.NoError(t, err)

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)

	var pos int
	require.NoError(t, orchid.Output(final, &pos))
	assert.Equal(t, 0, pos, "the fast activity should win the race")
}

func TestLocalRunnerExternalEventFlow(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Approval", func(ctx *orchid.OrchestrationContext) (any, error) {
		ctx.SetCustomStatus("awaiting approval")
		payload, err := ctx.WaitForEvent("approve").Await()
		if err != nil {
			return nil, err
		}
		var by string
		if err := json.Unmarshal(payload, &by); err != nil {
			return nil, err
		}
		return "approved by " + by, nil
	}).MustRegister(reg)

	runner := startedRunner(t, reg)
	ctx := context.Background()

	inst, err := orchid.Start(ctx, runner.Engine, "Approval", nil)
	require.NoError(t, err)

	// Wait for the instance to suspend on the event.
	require.Eventually(t, func() bool {
		got, err := orchid.GetInstance(ctx, runner.Engine, inst.ID)
		return err == nil && got.Status == orchid.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, orchid.RaiseEvent(ctx, runner.Engine, inst.ID, "approve", "alice"))

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)

	var result string
	require.NoError(t, orchid.Output(final, &result))
	assert.Equal(t, "approved by alice", result)
}

func TestLocalRunnerTerminate(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Stuck", func(ctx *orchid.OrchestrationContext) (any, error) {
		return ctx.WaitForEvent("never").Await()
	}).MustRegister(reg)

	runner := startedRunner(t, reg)
	ctx := context.Background()

	inst, err := orchid.Start(ctx, runner.Engine, "Stuck", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := orchid.GetInstance(ctx, runner.Engine, inst.ID)
		return err == nil && got.Status == orchid.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, orchid.Terminate(ctx, runner.Engine, inst.ID, "test cleanup"))

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusTerminated, final.Status)
	assert.Equal(t, "test cleanup", final.Err)
}

func TestLocalRunnerRetryBuilder(t *testing.T) {
	attempts := 0
	reg := orchid.NewRegistry()
	orchid.Define("Resilient", func(ctx *orchid.OrchestrationContext) (any, error) {
		retry := orchid.Retry(3).WithFirstRetryInterval(time.Millisecond).Options()
		return ctx.CallActivityWithRetry("Flaky", retry, nil).Await()
	}).Activity("Flaky", func(ctx context.Context, input json.RawMessage) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}).MustRegister(reg)

	runner := startedRunner(t, reg)

	inst, err := orchid.Start(context.Background(), runner.Engine, "Resilient", nil)
	require.NoError(t, err)

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)
	assert.Equal(t, 2, attempts)
}

func TestLocalRunnerFailureSurfacesOnInstance(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Doomed", func(ctx *orchid.OrchestrationContext) (any, error) {
		_, err := ctx.CallActivity("Broken", nil).Await()
		return nil, err
	}).Activity("Broken", func(ctx context.Context, input json.RawMessage) (any, error) {
		return nil, errors.New("unrecoverable")
	}).MustRegister(reg)

	runner := startedRunner(t, reg)

	inst, err := orchid.Start(context.Background(), runner.Engine, "Doomed", nil)
	require.NoError(t, err)

	final := waitDone(t, runner.Engine, inst.ID)
	assert.Equal(t, orchid.StatusFailed, final.Status)
	assert.Contains(t, final.Err, "unrecoverable")
}

func TestLocalRunnerDoubleStartRejected(t *testing.T) {
	reg := orchid.NewRegistry()
	runner := orchid.NewLocalRunner(reg)

	ctx := context.Background()
	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.Error(t, runner.StartWorkers(ctx, 1))
}

func TestOutputHelper(t *testing.T) {
	inst := &orchid.OrchestrationInstance{Status: orchid.StatusRunning}
	var v int
	assert.True(t, errors.Is(orchid.Output(inst, &v), orchid.ErrNotTerminal))

	inst = &orchid.OrchestrationInstance{Status: orchid.StatusCompleted, Output: []byte(`41`)}
	require.NoError(t, orchid.Output(inst, &v))
	assert.Equal(t, 41, v)

	// No output recorded leaves the target untouched.
	inst = &orchid.OrchestrationInstance{Status: orchid.StatusTerminated}
	require.NoError(t, orchid.Output(inst, &v))
	assert.Equal(t, 41, v)
}

func TestSQLiteBundleEndToEnd(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Persisted", func(ctx *orchid.OrchestrationContext) (any, error) {
		return ctx.CallActivity("Echo", "durable").Await()
	}).Activity("Echo", func(ctx context.Context, input json.RawMessage) (any, error) {
		return input, nil
	}).MustRegister(reg)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bundle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bundle, err := orchid.NewSQLiteBundle(db, reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bundle.Worker.Run(ctx, nil) }()

	inst, err := orchid.Start(ctx, bundle.Engine, "Persisted", "durable")
	require.NoError(t, err)

	final := waitDone(t, bundle.Engine, inst.ID)
	assert.Equal(t, orchid.StatusCompleted, final.Status)
	assert.Equal(t, `"durable"`, string(final.Output))

	// The instance row is readable straight from the shared database.
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM instances WHERE id = ?`, inst.ID).Scan(&status))
	assert.Equal(t, "COMPLETED", status)
}

func TestSQLiteEngineFacade(t *testing.T) {
	reg := orchid.NewRegistry()
	orchid.Define("Quick", func(ctx *orchid.OrchestrationContext) (any, error) {
		return "done", nil
	}).MustRegister(reg)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "facade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	eng, err := orchid.NewSQLiteEngine(db, reg)
	require.NoError(t, err)

	ctx := context.Background()
	inst, err := eng.Start(ctx, "Quick", nil)
	require.NoError(t, err)

	// Drive the single pass directly; no worker needed for this smoke test.
	require.NoError(t, eng.RunOrchestrationPass(ctx, inst.ID))

	final, err := eng.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, orchid.StatusCompleted, final.Status)
}
