package application

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Stage names for the per-record pipeline. A record advances through them
// in order; an error pins the record to the stage it failed in.
const (
	StageClient    = "client"
	StageOrder     = "order"
	StageDrop      = "drop"
	StageTasklists = "tasklists"
	StageDone      = "done"
)

const eventAdvance = "advance"

type recordContext struct {
	ClientID int64
	OrderID  int64
	DropID   int64
}

// recordProgress tracks how far a single report row made it through the
// pipeline, so a failure can be logged against the right stage.
type recordProgress struct {
	interpreter *statekit.Interpreter[recordContext]
}

func newRecordProgress(clientID, orderID, dropID int64) (*recordProgress, error) {
	builder := statekit.NewMachine[recordContext]("sync-record").
		WithInitial(statekit.StateID(StageClient)).
		WithContext(recordContext{
			ClientID: clientID,
			OrderID:  orderID,
			DropID:   dropID,
		})

	builder.State(StageClient).
		On(eventAdvance).Target(StageOrder).
		Done()
	builder.State(StageOrder).
		On(eventAdvance).Target(StageDrop).
		Done()
	builder.State(StageDrop).
		On(eventAdvance).Target(StageTasklists).
		Done()
	builder.State(StageTasklists).
		On(eventAdvance).Target(StageDone).
		Done()
	builder.State(StageDone).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build record state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &recordProgress{interpreter: interpreter}, nil
}

// Advance moves the record to the next stage.
func (p *recordProgress) Advance() {
	p.interpreter.Send(statekit.Event{Type: statekit.EventType(eventAdvance)})
}

// Stage reports the stage the record is currently in.
func (p *recordProgress) Stage() string {
	return string(p.interpreter.State().Value)
}
