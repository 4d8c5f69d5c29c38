package runtime

import (
	"fmt"
	"path"
	"strings"
)

// InputState classifies the most recent user submission into the boolean
// facets transition conditions can test.
type InputState struct {
	Prompt string
	Files  []string
}

func (s InputState) HasFiles() bool {
	return len(s.Files) > 0
}

func (s InputState) HasPrompt() bool {
	return strings.TrimSpace(s.Prompt) != ""
}

func (s InputState) HasPromptOnly() bool {
	return s.HasPrompt() && !s.HasFiles()
}

func (s InputState) HasPromptAndFile() bool {
	return s.HasPrompt() && s.HasFiles()
}

func (s InputState) HasImages() bool {
	for _, f := range s.Files {
		switch strings.ToLower(path.Ext(f)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			return true
		}
	}
	return false
}

// Facet returns the value of the named condition facet. Unknown kinds are
// errors rather than silent fall-through.
func (s InputState) Facet(kind ConditionKind) (bool, error) {
	switch kind {
	case CondHasFiles:
		return s.HasFiles(), nil
	case CondHasPromptOnly:
		return s.HasPromptOnly(), nil
	case CondHasPromptAndFile:
		return s.HasPromptAndFile(), nil
	case CondHasPrompt:
		return s.HasPrompt(), nil
	case CondHasImages:
		return s.HasImages(), nil
	default:
		return false, fmt.Errorf("unknown condition kind: %q", kind)
	}
}

// Output converts the captured input into the registry payload persisted
// under the current node's key before transitioning, so later steps can
// consume the prompt text and the first uploaded file.
func (s InputState) Output() Output {
	out := Output{
		"prompt":      s.Prompt,
		"description": s.Prompt,
	}
	if len(s.Files) > 0 {
		out["file"] = s.Files[0]
	}
	return out
}

// SelectNext picks the next step id for a step after user input. Rules are
// evaluated in declared order and the first rule whose condition value
// matches the input facet wins; a rule without a condition always wins.
// When no rule matches, defaultNextStep then nextStep are used. When
// nothing resolves, an ErrorTransitionUnresolved flow error is returned.
func SelectNext(step FlowStep, in InputState) (string, error) {
	for _, rule := range step.Transitions {
		if rule.Condition == nil {
			return rule.NextStep, nil
		}
		got, err := in.Facet(rule.Condition.Type)
		if err != nil {
			return "", WrapFlowError(ErrorTransitionUnresolved, step.StepID, err)
		}
		if got == rule.Condition.Value {
			return rule.NextStep, nil
		}
	}
	if step.DefaultNextStep != "" {
		return step.DefaultNextStep, nil
	}
	if step.NextStep != "" {
		return step.NextStep, nil
	}
	return "", NewFlowError(ErrorTransitionUnresolved, step.StepID,
		"no transition matched and no default next step is defined")
}
