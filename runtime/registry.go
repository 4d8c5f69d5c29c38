package runtime

import (
	"strings"
	"sync"
)

// OutputRegistry is the per-execution key→output store. It is the single
// shared mutable resource of an execution: the dispatch loop is the normal
// writer, but external completion writers (the streaming callback) may
// publish into it from other goroutines, so access is mutex-guarded.
// Readers must tolerate absent keys.
type OutputRegistry struct {
	mu      sync.Mutex
	outputs map[string]Output
	waiters map[string][]chan Output
}

func NewOutputRegistry() *OutputRegistry {
	return &OutputRegistry{
		outputs: make(map[string]Output),
		waiters: make(map[string][]chan Output),
	}
}

// Set stores an output under key and notifies any watchers of that key.
func (r *OutputRegistry) Set(key string, out Output) {
	r.mu.Lock()
	r.outputs[key] = out
	watchers := r.waiters[key]
	r.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- out:
		default:
		}
	}
}

// SetBoth stores an output under both the producing step's id and its node
// key so either reference resolves it. Empty keys are skipped.
func (r *OutputRegistry) SetBoth(stepID, nodeKey string, out Output) {
	if stepID != "" {
		r.Set(stepID, out)
	}
	if nodeKey != "" && nodeKey != stepID {
		r.Set(nodeKey, out)
	}
}

// Get returns the output stored under key, if any.
func (r *OutputRegistry) Get(key string) (Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outputs[key]
	return out, ok
}

// Watch subscribes to writes under key. The returned cancel func must be
// called when the watcher is done; it is safe to call more than once.
func (r *OutputRegistry) Watch(key string) (<-chan Output, func()) {
	ch := make(chan Output, 4)

	r.mu.Lock()
	r.waiters[key] = append(r.waiters[key], ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		watchers := r.waiters[key]
		for i, w := range watchers {
			if w == ch {
				r.waiters[key] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// All returns a copy of the current outputs, keyed as stored. Used for
// generator payload assembly and expression environments.
func (r *OutputRegistry) All() map[string]Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]Output, len(r.outputs))
	for k, v := range r.outputs {
		copied[k] = v
	}
	return copied
}

// placeholderPrefix marks outputs substituted by the completion waiter on
// timeout, e.g. "[Request ID: abc123]".
const placeholderPrefix = "[Request ID:"

func placeholderText(s string) bool {
	return strings.HasPrefix(s, placeholderPrefix)
}
