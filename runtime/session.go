package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one conversational flow run: the append-only message log,
// the input-mode flags read by the presentation surface, and the driver
// loop that serializes all step dispatch. Every state transition of the
// interpreter runs on the session's single work goroutine; timers and
// remote callbacks re-enter through the work queue, so no two steps of
// the same execution ever run concurrently.
type Session struct {
	ID string

	cfg    Config
	l      *slog.Logger
	defs   DefinitionSource
	gen    Generator
	waiter CompletionWaiter

	ctx    context.Context
	cancel context.CancelFunc
	work   chan func()

	mu           sync.Mutex
	messages     []ConversationMessage
	textInput    bool
	fileInput    bool
	loading      bool
	err          error
	lastInput    InputState
	pendingAgent *agentWait
	pending      map[string]pendingRequest // request id -> completion target

	// root is the implicit top-level execution; active is the context
	// whose current step is awaiting input or advancement.
	root   *Execution
	active *Execution
}

// pendingRequest maps an async generation request id back to the registry
// and keys the completion callback must write.
type pendingRequest struct {
	registry *OutputRegistry
	stepID   string
	nodeKey  string
}

// NewSession creates a session and starts its driver loop. Close must be
// called to release it.
func NewSession(cfg Config, l *slog.Logger, defs DefinitionSource, gen Generator) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:      uuid.New().String(),
		cfg:     cfg,
		l:       l,
		defs:    defs,
		gen:     gen,
		waiter:  CompletionWaiter{Timeout: cfg.WaitTimeout(), Interval: cfg.WaitInterval()},
		ctx:     ctx,
		cancel:  cancel,
		work:    make(chan func(), 64),
		pending: make(map[string]pendingRequest),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

// enqueue hands a work item to the driver loop. Items submitted after
// Close are dropped.
func (s *Session) enqueue(fn func()) {
	select {
	case s.work <- fn:
	case <-s.ctx.Done():
	}
}

// after schedules fn on the driver loop once delay has elapsed. Pacing
// delays are a scheduler concern, never recursion inside handlers.
func (s *Session) after(delay time.Duration, fn func()) {
	if delay <= 0 {
		s.enqueue(fn)
		return
	}
	time.AfterFunc(delay, func() { s.enqueue(fn) })
}

// Start loads the workflow definition and begins dispatch at step 0.
func (s *Session) Start(workflowKey string) {
	s.enqueue(func() {
		def, err := s.defs.Workflow(s.ctx, workflowKey)
		if err != nil || def == nil {
			s.l.Error("workflow definition unavailable", "workflow", workflowKey, "error", err)
			s.setErr(NewFlowError(ErrorDefinitionUnavailable, "", fmt.Sprintf("workflow %q unavailable", workflowKey)))
			return
		}
		root := NewExecution(def)
		s.mu.Lock()
		s.root = root
		s.active = root
		s.mu.Unlock()
		s.dispatch(root, 0)
	})
}

// HandleUserInput captures a user submission: it persists the input under
// the current node's key, appends the user message, and advances via the
// transition engine. While an agent session awaits feedback the submission
// is routed to the feedback endpoint instead.
func (s *Session) HandleUserInput(text string, files []string) {
	s.enqueue(func() {
		s.appendMessage(RoleUser, text, files, nil)

		if s.AwaitingFeedback() {
			s.submitFeedback(text)
			return
		}

		exec := s.active
		if exec == nil {
			s.l.Warn("user input with no active execution")
			return
		}
		step, ok := exec.StepAt(exec.Index)
		if !ok {
			s.l.Warn("user input past the end of the flow")
			return
		}

		in := InputState{Prompt: text, Files: files}
		s.mu.Lock()
		s.lastInput = in
		s.textInput = false
		s.fileInput = false
		s.mu.Unlock()

		exec.Registry.SetBoth(step.StepID, step.NodeKey, in.Output())

		next, err := SelectNext(step, in)
		if err != nil {
			s.l.Error("transition unresolved", "step", step.StepID, "error", err)
			s.setErr(err)
			return
		}
		s.advanceTo(exec, next, 0)
	})
}

// HandleAgentFeedback submits feedback for the paused agent refinement
// loop directly, bypassing transition selection.
func (s *Session) HandleAgentFeedback(feedback string) {
	s.enqueue(func() {
		s.appendMessage(RoleUser, feedback, nil, nil)
		s.submitFeedback(feedback)
	})
}

// ResolveCompletion is the external-writer entry point: it publishes the
// real output of an asynchronous generation under the keys registered for
// the request id. Returns false when the request id is unknown to this
// session.
func (s *Session) ResolveCompletion(requestID string, out Output) bool {
	s.mu.Lock()
	p, ok := s.pending[requestID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.registry.SetBoth(p.stepID, p.nodeKey, out)
	return true
}

func (s *Session) registerPending(requestID string, reg *OutputRegistry, stepID, nodeKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requestID] = pendingRequest{registry: reg, stepID: stepID, nodeKey: nodeKey}
}

func (s *Session) unregisterPending(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestID)
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]ConversationMessage, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// InputModes returns the current text/file input flags.
func (s *Session) InputModes() (text, file bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textInput, s.fileInput
}

// IsLoading reports whether a generator call is in flight.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the recorded session error, if any. Errors are scoped to
// the session; nothing here is fatal to the hosting process.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CurrentStep returns the id of the step the active context points at.
func (s *Session) CurrentStep() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	if step, ok := s.active.StepAt(s.active.Index); ok {
		return step.StepID
	}
	return ""
}

// Snapshot is the diagnostic view of a session, replacing any ambient
// global debug handle.
type Snapshot struct {
	SessionID        string   `json:"session_id"`
	CurrentStep      string   `json:"current_step"`
	ProcessedSteps   []string `json:"processed_steps"`
	NestedExecution  bool     `json:"nested_execution"`
	AwaitingFeedback bool     `json:"awaiting_feedback"`
	PendingRequests  int      `json:"pending_requests"`
	Loading          bool     `json:"loading"`
	Error            string   `json:"error,omitempty"`
}

// Snapshot returns the current diagnostic state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:        s.ID,
		AwaitingFeedback: s.pendingAgent != nil,
		PendingRequests:  len(s.pending),
		Loading:          s.loading,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.active != nil {
		snap.NestedExecution = s.active != s.root
		snap.ProcessedSteps = s.active.ProcessedSteps()
		if step, ok := s.active.StepAt(s.active.Index); ok {
			snap.CurrentStep = step.StepID
		}
	}
	return snap
}

// Close abandons the session. Pending timers and waits are dropped, not
// drained; the execution state is garbage collected.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) appendMessage(role Role, content string, files []string, feedback *AgentFeedback) {
	msg := ConversationMessage{
		ID:            uuid.New().String(),
		Role:          role,
		Content:       content,
		Timestamp:     time.Now(),
		Files:         files,
		AgentFeedback: feedback,
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *Session) appendAssistant(content string, files []string, feedback *AgentFeedback) {
	s.appendMessage(RoleAssistant, content, files, feedback)
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) setInputModes(text, file bool) {
	s.mu.Lock()
	s.textInput = text
	s.fileInput = file
	s.mu.Unlock()
}
