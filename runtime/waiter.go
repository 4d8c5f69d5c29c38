package runtime

import (
	"fmt"
	"time"
)

// CompletionWaiter waits for an external writer to publish the real output
// of an asynchronous generation into a registry, bounded by a timeout.
// It subscribes to registry writes instead of busy-polling; the interval
// is a periodic re-check guarding the subscription.
type CompletionWaiter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Await blocks until the registry holds a real (non-placeholder) text
// output under key, or until the timeout elapses. On timeout a placeholder
// output carrying the request id is written under both key and stepID so
// downstream steps always see some value rather than an absent key.
func (w CompletionWaiter) Await(reg *OutputRegistry, stepID, key, requestID string) Output {
	if out, ok := reg.Get(key); ok && realText(out) {
		return out
	}

	ch, cancel := reg.Watch(key)
	defer cancel()

	deadline := time.NewTimer(w.Timeout)
	defer deadline.Stop()
	recheck := time.NewTicker(w.Interval)
	defer recheck.Stop()

	for {
		select {
		case out := <-ch:
			if realText(out) {
				return out
			}
		case <-recheck.C:
			if out, ok := reg.Get(key); ok && realText(out) {
				return out
			}
		case <-deadline.C:
			placeholder := placeholderOutput(requestID)
			reg.SetBoth(stepID, key, placeholder)
			return placeholder
		}
	}
}

func realText(out Output) bool {
	return out.Text() != "" && !out.Placeholder()
}

func placeholderOutput(requestID string) Output {
	text := fmt.Sprintf("%s %s]", placeholderPrefix, requestID)
	return Output{"text": text, "generated_text": text}
}

// awaitCompletion registers the request id so the completion callback can
// find this execution's registry, then suspends the dispatch loop until
// the external writer publishes the output or the wait times out. A
// timeout is not a failure: the flow proceeds with the placeholder.
func (s *Session) awaitCompletion(exec *Execution, step FlowStep, requestID string) {
	key := step.NodeKey
	if key == "" {
		key = step.StepID
	}
	s.registerPending(requestID, exec.Registry, step.StepID, key)
	defer s.unregisterPending(requestID)

	s.l.Info(fmt.Sprintf("Waiting for async completion: %s", requestID), "step", step.StepID)
	out := s.waiter.Await(exec.Registry, step.StepID, key, requestID)
	if out.Placeholder() {
		s.l.Warn("completion wait timed out, substituted placeholder",
			"step", step.StepID, "request_id", requestID)
	}

	s.renderOutput(out)
	s.advanceFrom(exec, step)
}
