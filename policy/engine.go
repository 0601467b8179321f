package policy

import (
	"context"
	"sync"
	"time"

	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/session"
)

// maxRetries bounds the optimistic-concurrency retry loop around a session
// save. Exceeding it surfaces an EvalError rather than retrying forever.
const maxRetries = 3

// Engine holds a set of compiled policies and evaluates them against a
// session.Store under optimistic concurrency control.
type Engine struct {
	mu         sync.RWMutex
	policies   map[string]*Compiled
	store      session.Store
	historyCap int
	now        timeFunc
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithHistoryCap overrides the number of history events retained per
// session save. The default is session.MaxHistory.
func WithHistoryCap(n int) Option {
	return func(e *Engine) { e.historyCap = n }
}

// WithClock overrides the clock used to timestamp history events; intended
// for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an Engine backed by store.
func NewEngine(store session.Store, opts ...Option) *Engine {
	e := &Engine{
		policies:   make(map[string]*Compiled),
		store:      store,
		historyCap: session.MaxHistory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register compiles p and adds it to the engine, replacing any existing
// policy with the same name.
func (e *Engine) Register(p Policy) error {
	compiled, err := Compile(p)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.policies[p.Name] = compiled
	e.mu.Unlock()
	return nil
}

// Get returns the uncompiled form of a registered policy by name.
func (e *Engine) Get(name string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.policies[name]
	if !ok {
		return Policy{}, false
	}
	return c.original, true
}

func (e *Engine) snapshot() []*Compiled {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Compiled, 0, len(e.policies))
	for _, c := range e.policies {
		out = append(out, c)
	}
	return out
}

// EvaluatePre runs every registered policy's before-stage effects for tool
// against the named session, retrying on optimistic-concurrency conflicts
// for at most maxRetries attempts in total. A GuardFailed error aborts immediately without
// retrying. Default context keys declared by a policy are seeded into the
// session before its effects run, without overwriting an existing key.
func (e *Engine) EvaluatePre(ctx context.Context, sessionID, tool string, input any) error {
	policies := e.snapshot()

	for attempt := 0; attempt < maxRetries; attempt++ {
		sess, err := e.store.Load(ctx, sessionID)
		if err != nil {
			return hosterrors.Wrap(hosterrors.KindEvalError, "loading session", err)
		}
		if sess.Context == nil {
			sess.Context = make(map[string]any)
		}

		anyModified := false
		for _, compiled := range policies {
			seedDefaults(&sess, compiled.original.Context)

			modified, err := compiled.evaluatePre(&sess, tool, input)
			if err != nil {
				return err
			}
			if modified {
				anyModified = true
			}
		}

		if !anyModified {
			return nil
		}

		err = e.store.Save(ctx, sessionID, sess)
		if err == nil {
			return nil
		}
		if kind, ok := hosterrors.KindOf(err); ok && kind == hosterrors.KindSessionConflict {
			continue
		}
		return hosterrors.Wrap(hosterrors.KindEvalError, "saving session", err)
	}

	return hosterrors.New(hosterrors.KindEvalError,
		"failed to reserve session after retries due to conflicts")
}

// EvaluatePost runs every registered policy's after-stage effects for tool
// against the named session, then always appends a bounded history event
// (even when no policy has effects registered) as part of the same save,
// retrying on optimistic-concurrency conflicts for at most maxRetries
// attempts in total. Post-evaluation failures are returned for the caller to log; they never
// retroactively fail a tool call that already completed.
func (e *Engine) EvaluatePost(ctx context.Context, sessionID, tool string, input, output any, callErr error) error {
	policies := e.snapshot()

	for attempt := 0; attempt < maxRetries; attempt++ {
		sess, err := e.store.Load(ctx, sessionID)
		if err != nil {
			return hosterrors.Wrap(hosterrors.KindEvalError, "loading session", err)
		}
		if sess.Context == nil {
			sess.Context = make(map[string]any)
		}

		for _, compiled := range policies {
			seedDefaults(&sess, compiled.original.Context)

			if err := compiled.evaluatePost(&sess, tool, input, output, callErr, e.historyCap, e.now); err != nil {
				return err
			}
		}

		err = e.store.Save(ctx, sessionID, sess)
		if err == nil {
			return nil
		}
		if kind, ok := hosterrors.KindOf(err); ok && kind == hosterrors.KindSessionConflict {
			continue
		}
		return hosterrors.Wrap(hosterrors.KindEvalError, "saving session", err)
	}

	return hosterrors.New(hosterrors.KindEvalError,
		"failed to save session after retries due to conflicts")
}

// seedDefaults writes each key in defaults into sess.Context that isn't
// already present, without overwriting existing values.
func seedDefaults(sess *session.Session, defaults map[string]any) {
	for k, v := range defaults {
		if _, ok := sess.Context[k]; !ok {
			sess.Context[k] = v
		}
	}
}
