package policy

import (
	"time"

	"github.com/google/cel-go/cel"

	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/session"
)

// maxCELHistoryItems bounds how many trailing history events are exposed to
// CEL expressions, independent of how many a session.Store retains.
const maxCELHistoryItems = 5

// timeFunc supplies the current time to history events; tests can substitute
// a deterministic clock.
type timeFunc func() time.Time

// evaluatePre runs every before-stage effect matching tool against sess,
// mutating sess.Context in place. It returns whether any update was applied
// so the caller knows whether a save is needed.
func (c *Compiled) evaluatePre(sess *session.Session, tool string, input any) (bool, error) {
	if sess.Context == nil {
		sess.Context = make(map[string]any)
	}
	vars := map[string]any{
		"context": sess.Context,
		"history": historyToCEL(sess.History),
		"input":   input,
		"tool":    tool,
	}

	modified := false
	for _, effect := range c.effects {
		if effect.original.stage() != StageBefore || !MatchPattern(effect.original.Tool, tool) {
			continue
		}

		out, _, err := effect.condition.Eval(vars)
		if err != nil {
			return modified, hosterrors.New(hosterrors.KindEvalError, err.Error())
		}
		conditionMet, ok := out.Value().(bool)
		if !ok {
			return modified, hosterrors.New(hosterrors.KindEvalError,
				"effect condition must return boolean")
		}

		if !conditionMet {
			if effect.original.FailMessage != "" {
				return modified, hosterrors.New(hosterrors.KindGuardFailed, effect.original.FailMessage)
			}
			continue
		}

		if len(effect.updates) == 0 {
			continue
		}
		if err := applyUpdates(effect.updates, vars, sess); err != nil {
			return modified, err
		}
		modified = true
	}
	return modified, nil
}

// evaluatePost runs every after-stage effect matching tool against sess,
// mutating sess.Context in place, then appends a history event for the
// invocation. callErr is the tool's own error, if any; it does not
// propagate through this method's return value, which only ever reports
// failures of the post-evaluation itself (CEL errors).
func (c *Compiled) evaluatePost(sess *session.Session, tool string, input, output any, callErr error, historyCap int, now timeFunc) error {
	if sess.Context == nil {
		sess.Context = make(map[string]any)
	}
	success := callErr == nil
	var errVal any
	var outVal any
	if success {
		outVal = output
	} else {
		errVal = callErr.Error()
	}

	vars := map[string]any{
		"context": sess.Context,
		"history": historyToCEL(sess.History),
		"input":   input,
		"tool":    tool,
		"output":  outVal,
		"error":   errVal,
		"success": success,
	}

	for _, effect := range c.effects {
		if effect.original.stage() != StageAfter || !MatchPattern(effect.original.Tool, tool) {
			continue
		}

		out, _, err := effect.condition.Eval(vars)
		if err != nil {
			return hosterrors.New(hosterrors.KindEvalError, err.Error())
		}
		conditionMet, ok := out.Value().(bool)
		if !ok || !conditionMet {
			continue
		}

		if len(effect.updates) == 0 {
			continue
		}
		if err := applyUpdates(effect.updates, vars, sess); err != nil {
			return err
		}
	}

	event := session.HistoryEvent{
		Tool:      tool,
		Input:     input,
		Success:   success,
		Timestamp: now(),
	}
	if success {
		event.Output = output
	} else {
		event.Error = callErr.Error()
	}
	sess.AppendHistory(event, historyCap)

	return nil
}

// applyUpdates evaluates each update expression, coerces the CEL result to
// JSON, writes it into sess.Context, and refreshes vars["context"] so later
// effects in the same evaluation see the new value.
func applyUpdates(updates map[string]cel.Program, vars map[string]any, sess *session.Session) error {
	if sess.Context == nil {
		sess.Context = make(map[string]any)
	}
	for key, prog := range updates {
		out, _, err := prog.Eval(vars)
		if err != nil {
			return hosterrors.New(hosterrors.KindEvalError, "update "+key+": "+err.Error())
		}
		sess.Context[key] = celToJSON(out)
		vars["context"] = sess.Context
	}
	return nil
}

// historyToCEL exposes the last maxCELHistoryItems history events to CEL
// expressions as a list of {tool, success} maps.
func historyToCEL(history []session.HistoryEvent) []any {
	start := len(history) - maxCELHistoryItems
	if start < 0 {
		start = 0
	}
	out := make([]any, 0, len(history)-start)
	for _, event := range history[start:] {
		out = append(out, map[string]any{
			"tool":    event.Tool,
			"success": event.Success,
		})
	}
	return out
}
