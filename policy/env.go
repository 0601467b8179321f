package policy

import "github.com/google/cel-go/cel"

// preEnv declares the CEL variables available to before-stage effects.
var preEnv = mustEnv(
	cel.Variable("context", cel.DynType),
	cel.Variable("history", cel.DynType),
	cel.Variable("input", cel.DynType),
	cel.Variable("tool", cel.DynType),
)

// postEnv declares the CEL variables available to after-stage effects: the
// pre-stage set plus the invocation outcome.
var postEnv = mustEnv(
	cel.Variable("context", cel.DynType),
	cel.Variable("history", cel.DynType),
	cel.Variable("input", cel.DynType),
	cel.Variable("tool", cel.DynType),
	cel.Variable("output", cel.DynType),
	cel.Variable("error", cel.DynType),
	cel.Variable("success", cel.BoolType),
)

func mustEnv(opts ...cel.EnvOption) *cel.Env {
	env, err := cel.NewEnv(opts...)
	if err != nil {
		panic("policy: building CEL environment: " + err.Error())
	}
	return env
}
