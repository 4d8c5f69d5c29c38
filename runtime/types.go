package runtime

import "time"

// StepType identifies the kind of a flow step. The set is closed; the
// dispatcher matches it exhaustively and rejects unknown values.
type StepType string

const (
	StepText      StepType = "text"
	StepNode      StepType = "node"
	StepProcessor StepType = "processor"
)

// AdvanceMode controls whether a step schedules the next dispatch itself
// or waits for user input / an external event.
type AdvanceMode string

const (
	AdvanceAuto   AdvanceMode = "auto"
	AdvanceManual AdvanceMode = "non-auto"
)

// StepComplete is the sentinel next-step id that ends an execution context
// instead of dispatching another step.
const StepComplete = "complete"

// ConditionKind classifies the facets of a user submission a transition
// rule can test. Closed set, matched exhaustively.
type ConditionKind string

const (
	CondHasFiles         ConditionKind = "hasFiles"
	CondHasPromptOnly    ConditionKind = "hasPromptOnly"
	CondHasPromptAndFile ConditionKind = "hasPromptAndFile"
	CondHasPrompt        ConditionKind = "hasPrompt"
	CondHasImages        ConditionKind = "hasImages"
)

// TransitionCondition is the guard of a transition rule: the rule fires
// when the named facet of the current input equals Value.
type TransitionCondition struct {
	Type  ConditionKind `json:"type" yaml:"type"`
	Value bool          `json:"value" yaml:"value"`
}

// TransitionRule selects the next step after user input. Rules are
// evaluated in declared order; the first satisfied rule wins. A rule
// without a condition always matches.
type TransitionRule struct {
	Condition *TransitionCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
	NextStep  string               `json:"nextStep" yaml:"nextStep"`
}

// FlowStep is one entry of a flow definition.
type FlowStep struct {
	StepID          string           `json:"stepId" yaml:"stepId"`
	Type            StepType         `json:"type" yaml:"type"`
	Content         string           `json:"content,omitempty" yaml:"content,omitempty"`
	NodeKey         string           `json:"nodeKey,omitempty" yaml:"nodeKey,omitempty"`
	ProcessorKey    string           `json:"processorKey,omitempty" yaml:"processorKey,omitempty"`
	Params          map[string]any   `json:"params,omitempty" yaml:"params,omitempty"`
	Requires        []string         `json:"requires,omitempty" yaml:"requires,omitempty"`
	Transitions     []TransitionRule `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	DefaultNextStep string           `json:"defaultNextStep,omitempty" yaml:"defaultNextStep,omitempty"`
	NextStep        string           `json:"nextStep,omitempty" yaml:"nextStep,omitempty"`
	Advance         AdvanceMode      `json:"advance,omitempty" yaml:"advance,omitempty"`
	Background      bool             `json:"background,omitempty" yaml:"background,omitempty"`

	// Condition is an optional expression gate evaluated against the
	// registry values; when it evaluates to false the step is skipped.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Auto reports whether the step advances without waiting for input.
func (s FlowStep) Auto() bool {
	return s.Advance == AdvanceAuto
}

// FlowDefinition is an ordered sequence of steps, immutable once loaded.
type FlowDefinition struct {
	ID    string     `json:"id" yaml:"id"`
	Steps []FlowStep `json:"flow" yaml:"flow"`
}

// ProcessorDefinition is a reusable nested flow invoked as a single step
// of a parent flow. It executes in its own dependency/registry scope.
type ProcessorDefinition struct {
	ID    string     `json:"id" yaml:"id"`
	Steps []FlowStep `json:"flow" yaml:"flow"`
}

// NodeType identifies the shape of a node operation descriptor.
type NodeType string

const (
	NodeInput     NodeType = "input"
	NodeOutput    NodeType = "output"
	NodeGenerator NodeType = "generator"
	NodeString    NodeType = "string"
	NodeAudio     NodeType = "audio"
)

// NodeDefinition is an external operation descriptor. Fetched from the
// definition store, never mutated by the interpreter.
type NodeDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Type        NodeType       `json:"type" yaml:"type"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	FileInput   bool           `json:"file_input,omitempty" yaml:"file_input,omitempty"`
	PromptInput bool           `json:"prompt_input,omitempty" yaml:"prompt_input,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Output is the opaque payload bag a step produces. Common fields are
// prompt, description, file, text, generated_text and s3_url.
type Output map[string]any

// Text returns the first textual payload field present.
func (o Output) Text() string {
	for _, k := range []string{"text", "generated_text", "result"} {
		if s, ok := o[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Description returns the descriptive text of the output, falling back to
// the captured prompt.
func (o Output) Description() string {
	for _, k := range []string{"description", "prompt"} {
		if s, ok := o[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// FileURL returns the first file reference field present.
func (o Output) FileURL() string {
	for _, k := range []string{"s3_url", "file"} {
		if s, ok := o[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Placeholder reports whether the output is the substitute written by the
// completion waiter on timeout rather than a real generation result.
func (o Output) Placeholder() bool {
	return placeholderText(o.Text())
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AgentIteration is one round of the iterative human-reviewed refinement
// transcript rendered while a generator is in agent mode.
type AgentIteration struct {
	Input        string `json:"input"`
	RawOutput    string `json:"raw_output"`
	ParsedOutput string `json:"parsed_output"`
	Valid        bool   `json:"valid"`
}

// AgentFeedback carries the refinement transcript attached to a message
// while a generator awaits user feedback.
type AgentFeedback struct {
	SessionID       string           `json:"agent_session_id"`
	WaitingFeedback bool             `json:"waiting_feedback"`
	Iterations      []AgentIteration `json:"iterations,omitempty"`
}

// ConversationMessage is one entry of the append-only message log.
type ConversationMessage struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	Files         []string       `json:"files,omitempty"`
	AgentFeedback *AgentFeedback `json:"agentFeedback,omitempty"`
}
