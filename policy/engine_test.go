package policy_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/policy"
	"github.com/pluginrt/hostrt/session"
	"github.com/pluginrt/hostrt/session/inmem"
)

func TestEngineGuardBlocksExecution(t *testing.T) {
	store := inmem.New()
	engine := policy.NewEngine(store)
	require.NoError(t, engine.Register(policy.Policy{
		Name:    "safety",
		Version: "1",
		Effects: []policy.Effect{{
			Tool:        "dangerous.*",
			Stage:       policy.StageBefore,
			Condition:   "context.safe_mode == true",
			FailMessage: "Safety first!",
		}},
	}))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", mustSeed(t, store, "s1", map[string]any{"safe_mode": false})))

	err := engine.EvaluatePre(ctx, "s1", "dangerous.nuke", map[string]any{})
	require.Error(t, err)
	kind, ok := hosterrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, hosterrors.KindGuardFailed, kind)
	require.Contains(t, err.Error(), "Safety first!")

	seeded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	seeded.Context["safe_mode"] = true
	require.NoError(t, store.Save(ctx, "s1", seeded))

	require.NoError(t, engine.EvaluatePre(ctx, "s1", "dangerous.nuke", map[string]any{}))
}

func TestEngineGuardNonBooleanConditionIsEvalErrorNotGuardFailed(t *testing.T) {
	store := inmem.New()
	engine := policy.NewEngine(store)
	require.NoError(t, engine.Register(policy.Policy{
		Name: "broken",
		Effects: []policy.Effect{{
			Tool:        "any.*",
			Stage:       policy.StageBefore,
			Condition:   "\"not-a-bool\"",
			FailMessage: "should never surface",
		}},
	}))

	err := engine.EvaluatePre(context.Background(), "s1", "any.tool", map[string]any{})
	require.Error(t, err)
	kind, ok := hosterrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, hosterrors.KindEvalError, kind)
}

func TestEnginePostEffectUpdatesContext(t *testing.T) {
	store := inmem.New()
	engine := policy.NewEngine(store)
	require.NoError(t, engine.Register(policy.Policy{
		Name: "commits",
		Effects: []policy.Effect{{
			Tool:      "git.commit",
			Stage:     policy.StageAfter,
			Condition: "success",
			Updates: map[string]string{
				"last_hash":    "output.hash",
				"commit_count": "context.commit_count + 1",
			},
		}},
	}))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", mustSeed(t, store, "s1", map[string]any{"commit_count": int64(0)})))

	err := engine.EvaluatePost(ctx, "s1", "git.commit",
		map[string]any{}, map[string]any{"hash": "abc-123"}, nil)
	require.NoError(t, err)

	sess, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "abc-123", sess.Context["last_hash"])
	require.Equal(t, int64(1), sess.Context["commit_count"])
	require.Len(t, sess.History, 1)
	require.Equal(t, uint64(2), sess.Version)
}

func TestEnginePostEffectAppendsHistoryWithNoEffects(t *testing.T) {
	store := inmem.New()
	engine := policy.NewEngine(store)
	require.NoError(t, engine.Register(policy.Policy{Name: "empty", Version: "1"}))

	ctx := context.Background()
	err := engine.EvaluatePost(ctx, "s1", "some.tool", map[string]any{}, map[string]any{}, nil)
	require.NoError(t, err)

	sess, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.History, 1)
	require.Equal(t, uint64(1), sess.Version)
}

func TestEngineOCCConflictRetryConverges(t *testing.T) {
	store := inmem.New()
	engine := policy.NewEngine(store)
	require.NoError(t, engine.Register(policy.Policy{
		Name: "counter",
		Effects: []policy.Effect{{
			Tool:      "*",
			Stage:     policy.StageAfter,
			Condition: "true",
			Updates:   map[string]string{"counter": "context.counter + 1"},
		}},
	}))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "s1", mustSeed(t, store, "s1", map[string]any{"counter": int64(0)})))

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			err := engine.EvaluatePost(ctx, "s1", "tool", map[string]any{}, map[string]any{}, nil)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), sess.Context["counter"])
	require.Len(t, sess.History, 2)
}

// mustSeed loads the current session for id and overlays ctxVals onto its
// context, returning a session ready to Save at its current (pre-save)
// version.
func mustSeed(t *testing.T, store session.Store, id string, ctxVals map[string]any) session.Session {
	t.Helper()
	sess, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	if sess.Context == nil {
		sess.Context = make(map[string]any)
	}
	for k, v := range ctxVals {
		sess.Context[k] = v
	}
	return sess
}
