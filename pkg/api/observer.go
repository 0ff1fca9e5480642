package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay orchestration progress.
type Observer interface {
	// OnOrchestrationStart is called once when an instance is first started,
	// before its first replay pass.
	OnOrchestrationStart(ctx context.Context, inst *OrchestrationInstance)

	// OnOrchestrationCompleted is called when an instance reaches
	// StatusCompleted.
	OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance)

	// OnOrchestrationFailed is called when an instance transitions to
	// StatusFailed.
	OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, err error)

	// OnPassCompleted is called after every replay pass, successful or not.
	// actions is the number of newly scheduled actions the pass produced.
	OnPassCompleted(ctx context.Context, inst *OrchestrationInstance, done bool, actions int, duration time.Duration)

	// OnActivityStart is called before an activity function is invoked.
	OnActivityStart(ctx context.Context, instanceID, activity string, taskID int)

	// OnActivityCompleted is called after an activity function returns, for
	// both successes and failures (err != nil).
	OnActivityCompleted(ctx context.Context, instanceID, activity string, taskID int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnOrchestrationStart(ctx context.Context, inst *OrchestrationInstance)     {}
func (NoopObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {}
func (NoopObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, err error) {
}
func (NoopObserver) OnPassCompleted(ctx context.Context, inst *OrchestrationInstance, done bool, actions int, d time.Duration) {
}
func (NoopObserver) OnActivityStart(ctx context.Context, instanceID, activity string, taskID int) {}
func (NoopObserver) OnActivityCompleted(ctx context.Context, instanceID, activity string, taskID int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnOrchestrationStart(ctx context.Context, inst *OrchestrationInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, err error) {
	for _, o := range c.observers {
		o.OnOrchestrationFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnPassCompleted(ctx context.Context, inst *OrchestrationInstance, done bool, actions int, d time.Duration) {
	for _, o := range c.observers {
		o.OnPassCompleted(ctx, inst, done, actions, d)
	}
}

func (c *CompositeObserver) OnActivityStart(ctx context.Context, instanceID, activity string, taskID int) {
	for _, o := range c.observers {
		o.OnActivityStart(ctx, instanceID, activity, taskID)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, instanceID, activity string, taskID int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, instanceID, activity, taskID, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs orchestration / activity
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnOrchestrationStart(ctx context.Context, inst *OrchestrationInstance) {
	o.Logger.InfoContext(ctx, "orchestration_start",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	o.Logger.InfoContext(ctx, "orchestration_completed",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, err error) {
	o.Logger.ErrorContext(ctx, "orchestration_failed",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnPassCompleted(ctx context.Context, inst *OrchestrationInstance, done bool, actions int, d time.Duration) {
	o.Logger.DebugContext(ctx, "pass_completed",
		slog.String("orchestration", inst.Name),
		slog.String("instance_id", inst.ID),
		slog.Bool("done", done),
		slog.Int("new_actions", actions),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnActivityStart(ctx context.Context, instanceID, activity string, taskID int) {
	o.Logger.DebugContext(ctx, "activity_start",
		slog.String("instance_id", instanceID),
		slog.String("activity", activity),
		slog.Int("task_id", taskID),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, instanceID, activity string, taskID int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("instance_id", instanceID),
		slog.String("activity", activity),
		slog.Int("task_id", taskID),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	orchestrationsStarted   atomic.Int64
	orchestrationsCompleted atomic.Int64
	orchestrationsFailed    atomic.Int64
	passesExecuted          atomic.Int64
	activitiesCompleted     atomic.Int64
	totalActivityDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	OrchestrationsStarted   int64
	OrchestrationsCompleted int64
	OrchestrationsFailed    int64
	PendingOrchestrations   int64

	PassesExecuted      int64
	ActivitiesCompleted int64
	AvgActivityDuration time.Duration
}

func (m *BasicMetrics) OnOrchestrationStart(ctx context.Context, inst *OrchestrationInstance) {
	m.orchestrationsStarted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationCompleted(ctx context.Context, inst *OrchestrationInstance) {
	m.orchestrationsCompleted.Add(1)
}

func (m *BasicMetrics) OnOrchestrationFailed(ctx context.Context, inst *OrchestrationInstance, err error) {
	m.orchestrationsFailed.Add(1)
}

func (m *BasicMetrics) OnPassCompleted(ctx context.Context, inst *OrchestrationInstance, done bool, actions int, d time.Duration) {
	m.passesExecuted.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, instanceID, activity string, taskID int, err error, d time.Duration) {
	// Only count successful activities for average duration.
	if err == nil {
		m.activitiesCompleted.Add(1)
		m.totalActivityDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.orchestrationsStarted.Load()
	completed := m.orchestrationsCompleted.Load()
	failed := m.orchestrationsFailed.Load()
	activities := m.activitiesCompleted.Load()
	totalNs := m.totalActivityDuration.Load()

	var avg time.Duration
	if activities > 0 {
		avg = time.Duration(totalNs / activities)
	}

	return BasicMetricsSnapshot{
		OrchestrationsStarted:   started,
		OrchestrationsCompleted: completed,
		OrchestrationsFailed:    failed,
		PendingOrchestrations:   started - completed - failed,
		PassesExecuted:          m.passesExecuted.Load(),
		ActivitiesCompleted:     activities,
		AvgActivityDuration:     avg,
	}
}
