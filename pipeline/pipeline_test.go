package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/policy"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/session/inmem"
	"github.com/pluginrt/hostrt/toolid"
)

func echoModule() abi.ToolModule {
	return abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "demo", CrateVersion: "0.1.0"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "echo", Name: "Echo"},
		},
		Call: func(_ context.Context, args abi.CallArgs) abi.CallResult {
			return abi.CallResult{Result: abi.ResultOk, Output: args.Input}
		},
	}
}

func newPipeline(t *testing.T, policies ...policy.Policy) (*pipeline.Pipeline, *inmem.Store) {
	t.Helper()
	b := registry.NewBuilder()
	require.NoError(t, b.Add(loader.New(echoModule(), "demo.so")))
	reg := b.Build()

	store := inmem.New()
	engine := policy.NewEngine(store)
	for _, p := range policies {
		require.NoError(t, engine.Register(p))
	}
	return pipeline.New(reg, engine), store
}

func TestInvokeHappyPath(t *testing.T) {
	p, _ := newPipeline(t)
	resp := p.Invoke(context.Background(), pipeline.Request{
		ToolID: toolid.New("demo", "echo"),
		Input:  []byte(`{"x":1}`),
	})
	require.True(t, resp.Ok())
	require.JSONEq(t, `{"x":1}`, string(resp.Output))
}

func TestInvokeToolNotFound(t *testing.T) {
	p, _ := newPipeline(t)
	resp := p.Invoke(context.Background(), pipeline.Request{
		ToolID: toolid.New("demo", "missing"),
		Input:  []byte(`{}`),
	})
	require.False(t, resp.Ok())
	require.Equal(t, hosterrors.KindToolNotFound, resp.Kind)
}

func TestInvokeGuardFailedAbortsBeforeCall(t *testing.T) {
	guard := policy.Policy{
		Name:    "deny-all",
		Version: "1.0.0",
		Effects: []policy.Effect{
			{
				Tool:        "demo.echo",
				Stage:       policy.StageBefore,
				Condition:   "false",
				FailMessage: "blocked by policy",
			},
		},
	}
	p, _ := newPipeline(t, guard)

	resp := p.Invoke(context.Background(), pipeline.Request{
		ToolID:    toolid.New("demo", "echo"),
		Input:     []byte(`{}`),
		SessionID: "s1",
	})
	require.False(t, resp.Ok())
	require.Equal(t, hosterrors.KindGuardFailed, resp.Kind)
	require.Equal(t, "blocked by policy", resp.Error)
}

func TestInvokeDefaultsSessionIDToRequestID(t *testing.T) {
	counter := policy.Policy{
		Name:    "count-calls",
		Version: "1.0.0",
		Effects: []policy.Effect{
			{
				Tool:      "demo.echo",
				Stage:     policy.StageAfter,
				Condition: "success",
				Updates:   map[string]string{"calls": "1"},
			},
		},
	}
	p, store := newPipeline(t, counter)

	resp := p.Invoke(context.Background(), pipeline.Request{
		ToolID:    toolid.New("demo", "echo"),
		Input:     []byte(`{}`),
		RequestID: "req-42",
	})
	require.True(t, resp.Ok())

	sess, err := store.Load(context.Background(), "req-42")
	require.NoError(t, err)
	require.Equal(t, int64(1), sess.Context["calls"])
}
