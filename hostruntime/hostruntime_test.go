package hostruntime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hostruntime"
	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/policy"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/session/inmem"
	"github.com/pluginrt/hostrt/toolid"
)

func echoLibrary(crate string) *loader.Library {
	module := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: crate, CrateVersion: "0.1.0"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "echo", Name: "Echo", Description: "echoes input"},
		},
		Call: func(_ context.Context, args abi.CallArgs) abi.CallResult {
			return abi.CallResult{Result: abi.ResultOk, Output: args.Input}
		},
	}
	return loader.New(module, crate+".so")
}

// TestLocalRoundTripsListAndCall exercises hostruntime.Local directly
// (the Builder's manifest-driven load path needs a real -buildmode=plugin
// shared object, which this module never builds), confirming it adapts a
// registry + pipeline pair to the Runtime facade correctly.
func TestLocalRoundTripsListAndCall(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.Add(echoLibrary("alpha")))
	reg := b.Build()

	engine := policy.NewEngine(inmem.New())
	pl := pipeline.New(reg, engine)

	rt := hostruntime.NewLocal(reg, pl)

	tools, err := rt.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, toolid.New("alpha", "echo"), tools[0].ID)

	resp, err := rt.CallTool(context.Background(), pipeline.Request{
		ToolID: toolid.New("alpha", "echo"),
		Input:  []byte(`{"message":"hi"}`),
	})
	require.NoError(t, err)
	require.True(t, resp.Ok())
	require.JSONEq(t, `{"message":"hi"}`, string(resp.Output))

	require.NoError(t, rt.Drain(context.Background()))
	rt.Close()
}

func TestBuilderRemoteModeDialsLazily(t *testing.T) {
	rt, err := hostruntime.NewBuilder().Remote("localhost:0").Build(context.Background())
	require.NoError(t, err, "grpc.NewClient does not dial eagerly, so an unreachable target still builds")
	require.NotNil(t, rt)
}

func TestBuilderLocalModeWithNoManifestYieldsEmptyRuntime(t *testing.T) {
	rt, err := hostruntime.NewBuilder().WithManifestPath(t.TempDir()).Build(context.Background())
	require.NoError(t, err)

	tools, err := rt.ListTools(context.Background())
	require.NoError(t, err)
	require.Empty(t, tools)
}
