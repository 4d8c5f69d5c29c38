package runtime

import "fmt"

// agentWait is the controller state while a generator sits in iterative
// human-reviewed refinement. The session has two observable states:
// awaiting-feedback (pending != nil) and idle. While awaiting, the flow
// index does not move; only submitted feedback can resume it.
type agentWait struct {
	exec      *Execution
	step      FlowStep
	node      *NodeDefinition
	sessionID string
}

// AwaitingFeedback reports whether the session is paused on an agent
// refinement loop.
func (s *Session) AwaitingFeedback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAgent != nil
}

// enterAgentWait processes an agent-mode response: either the refinement
// loop continues (halt auto-advancement, render the iteration transcript)
// or the remote reports a validated final output and the step completes.
func (s *Session) enterAgentWait(exec *Execution, step FlowStep, node *NodeDefinition, resp *GeneratorResponse) {
	if resp.Validated && resp.FinalOutput != "" {
		s.finishAgent(exec, step, resp)
		return
	}

	if !resp.WaitingFeedback || resp.AgentSessionID == "" {
		// Agent mode without a feedback request behaves like a
		// synchronous result.
		out := resp.Output()
		exec.Registry.SetBoth(step.StepID, step.NodeKey, out)
		s.renderOutput(out)
		s.advanceFrom(exec, step)
		return
	}

	s.l.Info(fmt.Sprintf("Agent awaiting feedback: %s", resp.AgentSessionID), "step", step.StepID)

	s.mu.Lock()
	s.pendingAgent = &agentWait{exec: exec, step: step, node: node, sessionID: resp.AgentSessionID}
	s.textInput = true
	s.mu.Unlock()

	s.appendAssistant(latestIterationText(resp.Conversation), nil, &AgentFeedback{
		SessionID:       resp.AgentSessionID,
		WaitingFeedback: true,
		Iterations:      resp.Conversation,
	})
}

// latestIterationText picks the message body for a feedback round: the
// parsed output of the newest iteration, falling back to its raw output.
func latestIterationText(iterations []AgentIteration) string {
	if len(iterations) == 0 {
		return "Waiting for your feedback."
	}
	last := iterations[len(iterations)-1]
	if last.ParsedOutput != "" {
		return last.ParsedOutput
	}
	return last.RawOutput
}

// finishAgent stores the validated final output under both keys and hands
// control back to the dispatcher to advance via the step's declared next
// step.
func (s *Session) finishAgent(exec *Execution, step FlowStep, resp *GeneratorResponse) {
	s.mu.Lock()
	s.pendingAgent = nil
	s.mu.Unlock()

	out := resp.Output()
	exec.Registry.SetBoth(step.StepID, step.NodeKey, out)
	s.renderOutput(out)
	s.advanceFrom(exec, step)
}

// submitFeedback re-invokes the feedback endpoint for the paused agent
// session. The response is handled identically to the original generator
// response: it may extend the loop with another waiting_feedback round or
// report a validated final output. There is no iteration cap; termination
// relies on the remote eventually reporting validated.
func (s *Session) submitFeedback(feedback string) {
	s.mu.Lock()
	w := s.pendingAgent
	s.pendingAgent = nil
	s.mu.Unlock()

	if w == nil {
		s.l.Warn("feedback submitted with no agent session pending")
		return
	}

	req := FeedbackRequest{
		AgentSessionID: w.sessionID,
		UserFeedback:   feedback,
		GeneratorKey:   w.step.NodeKey,
		Metadata:       w.step.Params,
	}
	if err := validate.Struct(req); err != nil {
		s.l.Error("invalid feedback request", "step", w.step.StepID, "error", err)
		s.appendAssistant(fmt.Sprintf("Error: %v", err), nil, nil)
		return
	}

	s.setLoading(true)
	resp, err := s.gen.SubmitFeedback(s.ctx, req)
	s.setLoading(false)

	if err != nil {
		s.l.Error("feedback invocation failed", "step", w.step.StepID, "error", err)
		s.appendAssistant(fmt.Sprintf("Error: %v", err), nil, nil)
		s.advanceFrom(w.exec, w.step)
		return
	}

	s.handleGeneratorResponse(w.exec, w.step, w.node, resp)
}
