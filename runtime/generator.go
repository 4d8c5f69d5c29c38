package runtime

import (
	"fmt"
	"regexp"
)

// GenerateRequest is the payload of one generator invocation: the
// accumulated node outputs of the execution merged with the step's static
// params. Known keys are validated at this boundary before the request
// leaves the process.
type GenerateRequest struct {
	GeneratorKey string            `json:"generatorKey" validate:"required"`
	NodeOutputs  map[string]Output `json:"node_outputs"`
	Params       map[string]any    `json:"params,omitempty"`

	// Agent-mode request shaping.
	AgentMode            bool   `json:"agent_mode,omitempty"`
	JSONPromptsReference string `json:"json_prompts_reference,omitempty"`
	Prompt               string `json:"prompt,omitempty"`
}

// FeedbackRequest re-invokes the feedback endpoint of an agent session.
type FeedbackRequest struct {
	AgentSessionID string         `json:"agent_session_id" validate:"required"`
	UserFeedback   string         `json:"user_feedback" validate:"required"`
	GeneratorKey   string         `json:"generator_key" validate:"required"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// GeneratorResponse is the normalized response of the generator and agent
// feedback endpoints. Success is a pointer because absence means success.
type GeneratorResponse struct {
	Success       *bool  `json:"success,omitempty"`
	Error         string `json:"error,omitempty"`
	Result        string `json:"result,omitempty"`
	GeneratedText string `json:"generated_text,omitempty"`
	S3URL         string `json:"s3_url,omitempty"`
	RequestID     string `json:"request_id,omitempty"`

	AgentMode       bool             `json:"agent_mode,omitempty"`
	Conversation    []AgentIteration `json:"conversation,omitempty"`
	WaitingFeedback bool             `json:"waiting_feedback,omitempty"`
	AgentSessionID  string           `json:"agent_session_id,omitempty"`
	FinalOutput     string           `json:"final_output,omitempty"`
	Validated       bool             `json:"validated,omitempty"`

	// Raw keeps the full decoded response body for diagnostics.
	Raw map[string]any `json:"-"`
}

// Failed reports whether the endpoint explicitly reported failure.
func (r *GeneratorResponse) Failed() bool {
	return r.Success != nil && !*r.Success
}

// ErrorMessage returns the user-visible failure text.
func (r *GeneratorResponse) ErrorMessage() string {
	if r.Error != "" {
		return r.Error
	}
	return "generation failed"
}

// Output converts a synchronous (or validated final) response into the
// registry payload bag.
func (r *GeneratorResponse) Output() Output {
	out := Output{}
	text := r.Result
	if text == "" {
		text = r.GeneratedText
	}
	if text == "" {
		text = r.FinalOutput
	}
	if text != "" {
		out["text"] = text
		out["generated_text"] = text
	}
	if r.S3URL != "" {
		out["s3_url"] = r.S3URL
	}
	return out
}

// responseKind is the classification of a generator response. The cases
// are mutually exclusive and checked in priority order.
type responseKind int

const (
	responseFailure responseKind = iota
	responseAgent
	responseAsync
	responseSync
)

// classifyResponse decides how a generator response is handled:
// explicit failure first, then an agent-mode conversation, then an
// asynchronous request id (only meaningful for llm/string category
// nodes), otherwise a synchronous result.
func classifyResponse(node *NodeDefinition, resp *GeneratorResponse) responseKind {
	switch {
	case resp.Failed():
		return responseFailure
	case resp.AgentMode && (len(resp.Conversation) > 0 || resp.WaitingFeedback):
		return responseAgent
	case resp.RequestID != "" && asyncCategory(node):
		return responseAsync
	default:
		return responseSync
	}
}

func asyncCategory(node *NodeDefinition) bool {
	if node == nil {
		return true
	}
	return node.Category == "llm" || node.Category == "string"
}

// assembleGenerateRequest gathers the node outputs accumulated across all
// prior steps and merges them with the step's static params. When the step
// requests agent mode, the payload additionally carries the prompt
// template reference and a rendered prompt body.
func assembleGenerateRequest(exec *Execution, step FlowStep) GenerateRequest {
	req := GenerateRequest{
		GeneratorKey: step.NodeKey,
		NodeOutputs:  exec.Registry.All(),
		Params:       step.Params,
	}

	if agentMode, _ := step.Params["agent_mode"].(bool); agentMode {
		req.AgentMode = true
		req.JSONPromptsReference, _ = step.Params["json_prompts_reference"].(string)
		if prompt, ok := step.Params["prompt"].(string); ok {
			req.Prompt = renderPromptTemplate(prompt, req.NodeOutputs)
		}
	}
	return req
}

var promptTokenPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// renderPromptTemplate substitutes known {token} placeholders with values
// captured in prior outputs. A token resolves to the description (or text)
// of the output stored under that key, or to a field of that name in any
// output. Unknown tokens are left in place.
func renderPromptTemplate(template string, outputs map[string]Output) string {
	return promptTokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		token := match[1 : len(match)-1]

		if out, ok := outputs[token]; ok {
			if d := out.Description(); d != "" {
				return d
			}
			if t := out.Text(); t != "" {
				return t
			}
		}

		for _, out := range outputs {
			if v, ok := out[token].(string); ok && v != "" {
				return v
			}
		}
		return match
	})
}

// invokeGenerator issues one request to the remote generation endpoint and
// routes the classified response. This is the only node sub-shape that
// performs an outward network call within dispatch.
func (s *Session) invokeGenerator(exec *Execution, step FlowStep, node *NodeDefinition) {
	req := assembleGenerateRequest(exec, step)

	if err := validate.Struct(req); err != nil {
		s.l.Error("invalid generator request", "step", step.StepID, "error", err)
		s.appendAssistant(fmt.Sprintf("Error: %v", err), nil, nil)
		s.advanceFrom(exec, step)
		return
	}

	s.l.Info(fmt.Sprintf("Invoking generator: %s", step.NodeKey), "step", step.StepID)
	s.setLoading(true)
	resp, err := s.gen.Generate(s.ctx, req)
	s.setLoading(false)

	if err != nil {
		s.l.Error("generator invocation failed", "step", step.StepID, "error", err)
		s.appendAssistant(fmt.Sprintf("Error: %v", err), nil, nil)
		s.advanceFrom(exec, step)
		return
	}

	s.handleGeneratorResponse(exec, step, node, resp)
}

// handleGeneratorResponse normalizes a generator (or feedback) response
// into registry entries and messages, then resolves advancement. Failure
// is fail-open: the error is shown and the flow still advances.
func (s *Session) handleGeneratorResponse(exec *Execution, step FlowStep, node *NodeDefinition, resp *GeneratorResponse) {
	switch classifyResponse(node, resp) {
	case responseFailure:
		s.l.Warn("generator reported failure", "step", step.StepID, "error", resp.Error)
		s.appendAssistant("Error: "+resp.ErrorMessage(), nil, nil)
		s.advanceFrom(exec, step)

	case responseAgent:
		s.enterAgentWait(exec, step, node, resp)

	case responseAsync:
		s.awaitCompletion(exec, step, resp.RequestID)

	case responseSync:
		out := resp.Output()
		exec.Registry.SetBoth(step.StepID, step.NodeKey, out)
		s.renderOutput(out)
		s.advanceFrom(exec, step)
	}
}

// renderOutput appends the message(s) for a stored generation result.
func (s *Session) renderOutput(out Output) {
	if text := out.Text(); text != "" {
		s.appendAssistant(text, nil, nil)
	}
	if file := out.FileURL(); file != "" {
		s.appendAssistant("", []string{file}, nil)
	}
}
