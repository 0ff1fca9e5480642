package orchid

import "fmt"

// Builder provides a fluent API for declaring an orchestrator together with
// the activities it calls:
//
//	onboard := orchid.Define("OnboardUser", onboardUser).
//	    Activity("CreateAccount", createAccount).
//	    Activity("SendWelcomeEmail", sendWelcomeEmail)
//
//	if err := onboard.Register(reg); err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := eng.Start(ctx, "OnboardUser", input)
type Builder struct {
	name       string
	fn         OrchestratorFunc
	activities []namedActivity
}

type namedActivity struct {
	name string
	fn   ActivityFunc
}

// Define creates a new builder for an orchestrator with the given name.
func Define(name string, fn OrchestratorFunc) *Builder {
	if name == "" {
		panic("orchid: orchestrator name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("orchid: orchestrator %q has nil function", name))
	}
	return &Builder{name: name, fn: fn}
}

// Name returns the orchestrator name.
func (b *Builder) Name() string {
	return b.name
}

// Activity adds an activity to be registered alongside the orchestrator.
func (b *Builder) Activity(name string, fn ActivityFunc) *Builder {
	if name == "" {
		panic("orchid: activity name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("orchid: activity %q has nil function", name))
	}
	b.activities = append(b.activities, namedActivity{name: name, fn: fn})
	return b
}

// Register adds the orchestrator and all declared activities to the registry.
func (b *Builder) Register(reg *Registry) error {
	if err := reg.AddOrchestrator(b.name, b.fn); err != nil {
		return err
	}
	for _, a := range b.activities {
		if err := reg.AddActivity(a.name, a.fn); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *Builder) MustRegister(reg *Registry) {
	if err := b.Register(reg); err != nil {
		panic(err)
	}
}
