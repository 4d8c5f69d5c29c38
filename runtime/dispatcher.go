package runtime

import (
	"fmt"
	"time"
)

// dispatch runs the step at stepIndex within its execution context. It is
// a no-op when the step was already processed, and a no-op without marking
// processed when the step's prerequisites are not satisfied. Side effects
// are strictly additive: messages are appended and registry entries
// written, never removed or reordered.
func (s *Session) dispatch(exec *Execution, stepIndex int) {
	step, ok := exec.StepAt(stepIndex)
	if !ok {
		s.completeExecution(exec)
		return
	}

	if exec.Processed(step.StepID) {
		s.l.Debug("step already processed", "step", step.StepID)
		return
	}

	if !DependenciesReady(exec, step) {
		// Not an error: the step is re-attempted whenever a later event
		// triggers dispatch at this index again.
		s.l.Debug("step not ready, dependencies unsatisfied",
			"step", step.StepID, "requires", step.Requires)
		return
	}

	if step.Condition != "" {
		met, err := EvalCondition(exec, step.Condition)
		if err != nil {
			s.l.Error(fmt.Sprintf("Error evaluating condition for step %s", step.StepID),
				"condition", step.Condition, "error", err)
			met = false
		}
		if !met {
			s.l.Info(fmt.Sprintf("Skipping step: %s", step.StepID))
			s.dispatch(exec, stepIndex+1)
			return
		}
	}

	exec.MarkProcessed(step.StepID)
	s.mu.Lock()
	exec.Index = stepIndex
	s.active = exec
	s.mu.Unlock()

	s.l.Info(fmt.Sprintf("Dispatching step: %s", step.StepID), "type", step.Type, "execution", exec.ID)

	switch step.Type {
	case StepText:
		s.runTextStep(exec, step)
	case StepNode:
		s.runNodeStep(exec, step)
	case StepProcessor:
		s.runProcessorStep(exec, step)
	default:
		s.l.Error("unknown step type", "step", step.StepID, "type", step.Type)
	}
}

// runTextStep appends the step's static content as an assistant message
// after the display delay, then auto-advances when the step asks for it.
func (s *Session) runTextStep(exec *Execution, step FlowStep) {
	s.after(s.displayDelay(step), func() {
		s.appendAssistant(step.Content, nil, nil)
		if step.Auto() {
			s.advanceFrom(exec, step)
		}
	})
}

// runNodeStep loads the node definition and sub-dispatches on its shape.
// A failed fetch aborts silently: no message, no advancement, and the
// step is unclaimed again so an external retrigger can retry it.
func (s *Session) runNodeStep(exec *Execution, step FlowStep) {
	node, err := s.defs.Node(s.ctx, step.NodeKey)
	if err != nil || node == nil {
		s.l.Error("node definition unavailable", "step", step.StepID, "node", step.NodeKey, "error", err)
		exec.Unmark(step.StepID)
		return
	}

	switch node.Type {
	case NodeInput:
		s.runInputNode(exec, step, node)
	case NodeGenerator:
		if step.Auto() {
			s.invokeGenerator(exec, step, node)
			return
		}
		// A non-auto generator first captures user input like an input
		// node; the transition after submission decides what runs next.
		s.runInputNode(exec, step, node)
	case NodeAudio:
		s.renderStoredFile(exec, step)
	case NodeString, NodeOutput:
		s.renderStoredText(exec, step)
	default:
		s.l.Error("unknown node type", "step", step.StepID, "node_type", node.Type)
	}
}

// runInputNode renders the prompt message and toggles the input-mode
// flags so the external input surface accepts the next submission.
// Display-only steps marked auto advance after the pacing delay instead
// of waiting for input.
func (s *Session) runInputNode(exec *Execution, step FlowStep, node *NodeDefinition) {
	prompt := inputPlaceholder(step, node)
	s.after(s.displayDelay(step), func() {
		if prompt != "" {
			s.appendAssistant(prompt, nil, nil)
		}
		s.setInputModes(node.PromptInput, node.FileInput)
		if step.Auto() {
			s.advanceFrom(exec, step)
		}
	})
}

func inputPlaceholder(step FlowStep, node *NodeDefinition) string {
	if p, ok := step.Params["placeholder"].(string); ok && p != "" {
		return p
	}
	if p, ok := node.Parameters["placeholder"].(string); ok && p != "" {
		return p
	}
	return "Type your message..."
}

// renderStoredText renders the nearest prior step's stored text output as
// an assistant message.
func (s *Session) renderStoredText(exec *Execution, step FlowStep) {
	out, ok := s.nearestPriorOutput(exec, func(o Output) bool { return o.Text() != "" })
	s.after(s.displayDelay(step), func() {
		if ok {
			s.appendAssistant(out.Text(), nil, nil)
		} else {
			s.l.Warn("no prior text output to render", "step", step.StepID)
		}
		if step.Auto() {
			s.advanceFrom(exec, step)
		}
	})
}

// renderStoredFile is the audio/file variant: the nearest prior file URL
// is rendered as a file attachment message.
func (s *Session) renderStoredFile(exec *Execution, step FlowStep) {
	out, ok := s.nearestPriorOutput(exec, func(o Output) bool { return o.FileURL() != "" })
	s.after(s.displayDelay(step), func() {
		if ok {
			s.appendAssistant("", []string{out.FileURL()}, nil)
		} else {
			s.l.Warn("no prior file output to render", "step", step.StepID)
		}
		if step.Auto() {
			s.advanceFrom(exec, step)
		}
	})
}

// nearestPriorOutput walks backwards from the current step looking for a
// registry entry (by step id, then node key) that satisfies want.
func (s *Session) nearestPriorOutput(exec *Execution, want func(Output) bool) (Output, bool) {
	for i := exec.Index - 1; i >= 0; i-- {
		prior, _ := exec.StepAt(i)
		for _, key := range []string{prior.StepID, prior.NodeKey} {
			if key == "" {
				continue
			}
			if out, ok := exec.Registry.Get(key); ok && want(out) {
				return out, true
			}
		}
	}
	return nil, false
}

// runProcessorStep loads the processor definition and begins dispatch at
// index 0 of a fresh execution context. Load failures fall back to
// advancing the parent flow instead of the nested one.
func (s *Session) runProcessorStep(exec *Execution, step FlowStep) {
	proc, err := s.defs.Processor(s.ctx, step.ProcessorKey)
	if err != nil || proc == nil {
		s.l.Error("processor definition unavailable, advancing parent flow",
			"step", step.StepID, "processor", step.ProcessorKey, "error", err)
		s.advanceFrom(exec, step)
		return
	}

	child := NewChildExecution(&FlowDefinition{ID: proc.ID, Steps: proc.Steps}, exec, step)
	s.l.Info(fmt.Sprintf("Entering processor: %s", proc.ID), "step", step.StepID, "execution", child.ID)
	s.dispatch(child, 0)
}

// advanceFrom resolves the declared next step (nextStep, then
// defaultNextStep) and schedules its dispatch, or ends the context when
// nothing further is declared.
func (s *Session) advanceFrom(exec *Execution, step FlowStep) {
	next := step.NextStep
	if next == "" {
		next = step.DefaultNextStep
	}
	delay := s.cfg.AdvanceDelay()
	if step.Background {
		delay = 0
	}
	s.advanceTo(exec, next, delay)
}

// advanceTo schedules dispatch of the named step, or ends the context on
// the complete sentinel / an empty id.
func (s *Session) advanceTo(exec *Execution, next string, delay time.Duration) {
	if next == "" || next == StepComplete {
		s.completeExecution(exec)
		return
	}
	idx := exec.IndexOf(next)
	if idx < 0 {
		err := NewFlowError(ErrorTransitionUnresolved, next,
			fmt.Sprintf("next step %q is not part of flow %s", next, exec.Definition.ID))
		s.l.Error("cannot advance", "error", err)
		s.setErr(err)
		return
	}
	s.after(delay, func() { s.dispatch(exec, idx) })
}

// completeExecution ends a context. A nested processor context returns
// control to its parent flow, which advances past the owning step.
func (s *Session) completeExecution(exec *Execution) {
	if exec.parent == nil {
		s.l.Info("flow complete", "flow", exec.Definition.ID, "execution", exec.ID)
		return
	}

	s.l.Info(fmt.Sprintf("Processor complete: %s", exec.Definition.ID), "execution", exec.ID)
	s.mu.Lock()
	s.active = exec.parent
	s.mu.Unlock()
	s.advanceFrom(exec.parent, exec.parentStep)
}

func (s *Session) displayDelay(step FlowStep) time.Duration {
	if step.Background {
		return 0
	}
	return s.cfg.MessageDelay()
}
