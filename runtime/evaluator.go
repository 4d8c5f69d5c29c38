package runtime

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvalCondition evaluates an optional step condition expression against
// the execution's registry values and reports whether the step should run.
// The environment maps each registry key to its output bag, so conditions
// can read fields like `music_input.prompt != ""`. Missing keys evaluate
// to nil instead of failing compilation.
func EvalCondition(e *Execution, expression string) (bool, error) {
	if expression == "" {
		return true, nil
	}

	env := conditionEnv(e)
	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		definedFn(env),
	}

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return false, fmt.Errorf("error compiling condition %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("error evaluating condition %q: %w", expression, err)
	}

	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, expected boolean", expression, result)
	}
	return resultBool, nil
}

func conditionEnv(e *Execution) map[string]any {
	env := make(map[string]any)
	for k, out := range e.Registry.All() {
		env[k] = map[string]any(out)
	}
	env["null"] = nil
	return env
}

// defined() distinguishes a missing registry key from a null value.
func definedFn(env map[string]any) expr.Option {
	return expr.Function(
		"defined",
		func(params ...any) (any, error) {
			key, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string key argument, got %T", params[0])
			}
			_, exists := env[key]
			return exists, nil
		},
		new(func(string) bool),
	)
}
