package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// Execution is the context of one flow run: the top-level workflow or one
// processor invocation. Each execution carries its own processed-step set
// and output registry; nested processor executions do not share scope with
// their parent. An execution is never persisted and is simply abandoned
// when its owning session goes away.
type Execution struct {
	ID         string
	Definition *FlowDefinition
	Registry   *OutputRegistry

	// Index is the position of the step currently (or last) dispatched.
	Index int

	// processed is guarded: the dispatch loop writes it, diagnostic
	// snapshots read it from other goroutines.
	procMu    sync.Mutex
	processed map[string]bool

	// parent links a nested processor execution back to the step that
	// spawned it, so completion can advance the parent flow.
	parent     *Execution
	parentStep FlowStep
}

// NewExecution creates the implicit top-level execution for a workflow.
func NewExecution(def *FlowDefinition) *Execution {
	return &Execution{
		ID:         uuid.New().String(),
		Definition: def,
		Registry:   NewOutputRegistry(),
		processed:  make(map[string]bool),
	}
}

// NewChildExecution creates the independent scope for a processor step.
func NewChildExecution(def *FlowDefinition, parent *Execution, step FlowStep) *Execution {
	child := NewExecution(def)
	child.parent = parent
	child.parentStep = step
	return child
}

// Processed reports whether stepID was already dispatched in this context.
func (e *Execution) Processed(stepID string) bool {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	return e.processed[stepID]
}

// MarkProcessed records that stepID has been dispatched. Dispatch never
// removes entries; a step runs at most once per context.
func (e *Execution) MarkProcessed(stepID string) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	e.processed[stepID] = true
}

// Unmark removes a step from the processed set. Only used when a
// definition fetch fails after the step was claimed, so an external
// retrigger can attempt it again.
func (e *Execution) Unmark(stepID string) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	delete(e.processed, stepID)
}

// StepAt returns the step at index i, or false when i is past the end of
// the flow.
func (e *Execution) StepAt(i int) (FlowStep, bool) {
	if i < 0 || i >= len(e.Definition.Steps) {
		return FlowStep{}, false
	}
	return e.Definition.Steps[i], true
}

// IndexOf returns the position of the step with the given id, or -1.
func (e *Execution) IndexOf(stepID string) int {
	for i, s := range e.Definition.Steps {
		if s.StepID == stepID {
			return i
		}
	}
	return -1
}

// StepByID returns the step with the given id.
func (e *Execution) StepByID(stepID string) (FlowStep, bool) {
	if i := e.IndexOf(stepID); i >= 0 {
		return e.Definition.Steps[i], true
	}
	return FlowStep{}, false
}

// ProcessedSteps returns a copy of the processed-step set, for diagnostics.
func (e *Execution) ProcessedSteps() []string {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	steps := make([]string, 0, len(e.processed))
	for id := range e.processed {
		steps = append(steps, id)
	}
	return steps
}
