// Package policy evaluates CEL-based pre- and post-invocation effects
// against per-session state, with optimistic-concurrency-controlled writes
// through a session.Store.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Stage selects when an effect is evaluated relative to the tool call.
type Stage string

const (
	// StageBefore evaluates the effect before the plugin is invoked.
	StageBefore Stage = "before"
	// StageAfter evaluates the effect after the plugin returns. This is the
	// default stage when an effect omits one.
	StageAfter Stage = "after"
)

// Policy is the uncompiled, declarative form of a policy: a name, version,
// default session context, and an ordered list of effects.
type Policy struct {
	Name    string
	Version string
	// Context seeds session context keys that are absent at evaluation
	// time; it never overwrites a key the session already has.
	Context map[string]any
	Effects []Effect
}

// Effect binds a CEL condition (and optional context updates) to a tool
// pattern and evaluation stage.
type Effect struct {
	Tool string
	// Stage defaults to StageAfter when empty.
	Stage Stage
	// Condition is a CEL expression that must evaluate to a boolean.
	Condition string
	// FailMessage, if set, turns a false Condition at StageBefore into a
	// GuardFailed error carrying this message. Ignored at StageAfter.
	FailMessage string
	// Updates maps session context keys to CEL expressions producing their
	// new values, applied in map iteration order when Condition is true.
	Updates map[string]string
}

func (e Effect) stage() Stage {
	if e.Stage == "" {
		return StageAfter
	}
	return e.Stage
}

// compiledEffect holds the programs compiled from an Effect.
type compiledEffect struct {
	original  Effect
	condition cel.Program
	updates   map[string]cel.Program
}

// Compiled is a Policy whose CEL expressions have all been parsed and
// type-checked against the pre/post evaluation environments.
type Compiled struct {
	original Policy
	effects  []compiledEffect
}

// Compile parses and checks every effect's condition and update expressions.
// Compilation errors are fatal for the whole policy and name the offending
// expression.
func Compile(p Policy) (*Compiled, error) {
	effects := make([]compiledEffect, 0, len(p.Effects))
	for _, effect := range p.Effects {
		env := preEnv
		if effect.stage() == StageAfter {
			env = postEnv
		}

		ast, issues := env.Compile(effect.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy %q: condition %q: %w", p.Name, effect.Condition, issues.Err())
		}
		condition, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("policy %q: condition %q: %w", p.Name, effect.Condition, err)
		}

		updates := make(map[string]cel.Program, len(effect.Updates))
		for key, expr := range effect.Updates {
			uast, uissues := env.Compile(expr)
			if uissues != nil && uissues.Err() != nil {
				return nil, fmt.Errorf("policy %q: update %q for key %q: %w", p.Name, expr, key, uissues.Err())
			}
			prog, err := env.Program(uast)
			if err != nil {
				return nil, fmt.Errorf("policy %q: update %q for key %q: %w", p.Name, expr, key, err)
			}
			updates[key] = prog
		}

		effects = append(effects, compiledEffect{
			original:  effect,
			condition: condition,
			updates:   updates,
		})
	}

	return &Compiled{original: p, effects: effects}, nil
}

// Name returns the compiled policy's declared name.
func (c *Compiled) Name() string { return c.original.Name }
