package runtime

import "testing"

func condFlow() *Execution {
	e := NewExecution(&FlowDefinition{ID: "f", Steps: []FlowStep{
		{StepID: "A", Type: StepNode, NodeKey: "music_input"},
	}})
	e.Registry.Set("music_input", Output{"prompt": "synthwave", "description": "a track"})
	return e
}

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		expected  bool
	}{
		{
			name:      "empty condition is always met",
			condition: "",
			expected:  true,
		},
		{
			name:      "field comparison",
			condition: `music_input.prompt == "synthwave"`,
			expected:  true,
		},
		{
			name:      "field mismatch",
			condition: `music_input.prompt == "jazz"`,
			expected:  false,
		},
		{
			name:      "missing key compares as nil",
			condition: `absent_key == nil`,
			expected:  true,
		},
		{
			name:      "defined on present key",
			condition: `defined("music_input")`,
			expected:  true,
		},
		{
			name:      "defined on absent key",
			condition: `defined("absent_key")`,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalCondition(condFlow(), tt.condition)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("EvalCondition(%q) = %v, want %v", tt.condition, got, tt.expected)
			}
		})
	}
}

func TestEvalCondition_NonBoolean(t *testing.T) {
	_, err := EvalCondition(condFlow(), `music_input.prompt`)
	if err == nil {
		t.Fatal("expected error for non-boolean condition result, got nil")
	}
}
