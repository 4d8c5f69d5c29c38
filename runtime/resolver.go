package runtime

// DependenciesReady reports whether every prerequisite declared in
// step.Requires is satisfied. A requirement is satisfied when the required
// step was already dispatched in this context, or when the required step's
// node key already has a registry entry (an out-of-order external write
// counts as readiness). Steps without requirements are always ready.
//
// Unready steps are simply not dispatched; there is no error and no
// backoff. Re-evaluation happens when a later event triggers a fresh
// dispatch attempt at the same index.
func DependenciesReady(e *Execution, step FlowStep) bool {
	for _, required := range step.Requires {
		if e.Processed(required) {
			continue
		}
		if satisfiedByOutput(e, required) {
			continue
		}
		return false
	}
	return true
}

func satisfiedByOutput(e *Execution, requiredStepID string) bool {
	required, ok := e.StepByID(requiredStepID)
	if !ok || required.NodeKey == "" {
		return false
	}
	_, ok = e.Registry.Get(required.NodeKey)
	return ok
}
