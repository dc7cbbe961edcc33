package engine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Run lifecycle states.
const (
	stateNotStarted = "not_started"
	stateRunning    = "running"
	stateCompleted  = "completed"
)

type runContext struct {
	RunID string
}

// runLifecycle guards engine entry and exit with an explicit state machine
// so a run cannot be entered twice or finished before it starts.
type runLifecycle struct {
	interpreter *statekit.Interpreter[runContext]
}

func newRunLifecycle(runID string) (*runLifecycle, error) {
	builder := statekit.NewMachine[runContext]("review-run").
		WithInitial(statekit.StateID(stateNotStarted)).
		WithContext(runContext{RunID: runID})

	builder.State(stateNotStarted).
		On("start").Target(stateRunning).
		Done()

	builder.State(stateRunning).
		On("finish").Target(stateCompleted).
		Done()

	builder.State(stateCompleted).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("engine.newRunLifecycle: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &runLifecycle{interpreter: interpreter}, nil
}

// transition fires an event and fails when the current state rejects it.
func (l *runLifecycle) transition(event string) error {
	before := l.current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if l.current() == before {
		return fmt.Errorf("engine: event %q not allowed in state %q", event, before)
	}
	return nil
}

func (l *runLifecycle) current() string {
	return string(l.interpreter.State().Value)
}
