package registry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/toolid"
)

func echoModule(crate string) abi.ToolModule {
	return abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: crate, CrateVersion: "0.1.0"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "echo", Name: "Echo", Description: "echoes input"},
		},
		Call: func(_ context.Context, args abi.CallArgs) abi.CallResult {
			return abi.CallResult{Result: abi.ResultOk, Output: args.Input}
		},
	}
}

func buildRegistry(t *testing.T, crates ...string) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	for _, crate := range crates {
		lib := loader.New(echoModule(crate), crate+".so")
		require.NoError(t, b.Add(lib))
	}
	return b.Build()
}

func TestBuilderRejectsDuplicateQualifiedID(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.Add(loader.New(echoModule("hello"), "hello.so")))
	err := b.Add(loader.New(echoModule("hello"), "hello-again.so"))
	require.Error(t, err)
}

func TestBuilderRejectsInvalidInputSchema(t *testing.T) {
	b := registry.NewBuilder()
	m := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "bad"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "tool", InputSchema: `{"type": "not-a-real-type"}`},
		},
	}
	err := b.Add(loader.New(m, "bad.so"))
	require.Error(t, err)
}

func TestBuilderRejectsInvalidSchemaWithoutCommittingEarlierDescriptors(t *testing.T) {
	b := registry.NewBuilder()
	m := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "multi"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "good"},
			{ID: "bad", InputSchema: `{"type": "not-a-real-type"}`},
		},
	}
	err := b.Add(loader.New(m, "multi.so"))
	require.Error(t, err)

	reg := b.Build()
	require.Empty(t, reg.List(), "a library rejected for one bad descriptor must not partially register")
	_, ok := reg.Handle(toolid.New("multi", "good"))
	require.False(t, ok, "descriptor preceding the invalid one must not have been committed")
}

func TestRegistryListInsertionOrder(t *testing.T) {
	reg := buildRegistry(t, "alpha", "beta", "gamma")
	list := reg.List()
	require.Equal(t, []toolid.ID{"alpha.echo", "beta.echo", "gamma.echo"},
		[]toolid.ID{list[0].ID, list[1].ID, list[2].ID})
}

func TestHandleCallRoundTrips(t *testing.T) {
	reg := buildRegistry(t, "hello")
	h, ok := reg.Handle(toolid.New("hello", "echo"))
	require.True(t, ok)

	result, err := h.Call(context.Background(), abi.CallContext{RequestID: "r1"}, []byte(`{"message":"hi"}`))
	require.NoError(t, err)
	require.True(t, result.Ok())
	require.Equal(t, `{"message":"hi"}`, string(result.Output))
}

func TestHandleMissingReturnsNotOK(t *testing.T) {
	reg := buildRegistry(t, "hello")
	_, ok := reg.Handle(toolid.New("hello", "missing"))
	require.False(t, ok)
}

func TestSearchExcludesEmptyEmbeddings(t *testing.T) {
	b := registry.NewBuilder()
	withEmbedding := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "search"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "a", Embedding: []float32{1, 0}},
			{ID: "b"}, // no embedding
			{ID: "c", Embedding: []float32{0, 1}},
		},
	}
	require.NoError(t, b.Add(loader.New(withEmbedding, "search.so")))
	reg := b.Build()

	results := reg.Search([]float32{1, 0}, 10)
	var ids []string
	for _, d := range results {
		ids = append(ids, string(d.ID))
	}
	require.Equal(t, []string{"search.a", "search.c"}, ids)
	require.Equal(t, "search.a", ids[0], "closest match ranks first")
}

func TestSearchTopKAndTieBreakByInsertionOrder(t *testing.T) {
	b := registry.NewBuilder()
	m := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "tie"},
		Descriptors: []abi.ToolDescriptor{
			{ID: "first", Embedding: []float32{1, 0}},
			{ID: "second", Embedding: []float32{1, 0}},
			{ID: "third", Embedding: []float32{1, 0}},
		},
	}
	require.NoError(t, b.Add(loader.New(m, "tie.so")))
	reg := b.Build()

	results := reg.Search([]float32{1, 0}, 2)
	require.Len(t, results, 2)
	require.Equal(t, toolid.ID("tie.first"), results[0].ID)
	require.Equal(t, toolid.ID("tie.second"), results[1].ID)
}

type recordingMetrics struct {
	mu     sync.Mutex
	gauges map[string]float64
	timers []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{gauges: make(map[string]float64)}
}

func (m *recordingMetrics) IncCounter(string, float64, ...string) {}

func (m *recordingMetrics) RecordTimer(name string, _ time.Duration, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, name)
}

func (m *recordingMetrics) RecordGauge(name string, value float64, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *recordingMetrics) gauge(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

func TestRegistryReportsInflightGaugeAndDrainDuration(t *testing.T) {
	metrics := newRecordingMetrics()
	b := registry.NewBuilder().WithMetrics(metrics)
	require.NoError(t, b.Add(loader.New(echoModule("gauged"), "gauged.so")))
	reg := b.Build()

	h, ok := reg.Handle(toolid.New("gauged", "echo"))
	require.True(t, ok)

	_, err := h.Call(context.Background(), abi.CallContext{}, []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, float64(0), metrics.gauge("registry.inflight"))

	require.NoError(t, reg.Drain(context.Background()))
	require.Contains(t, metrics.timers, "registry.drain.duration")
}

func TestDrainRefusesNewInvocationsAndWaitsForInflight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := registry.NewBuilder()
	m := abi.ToolModule{
		Meta: abi.ToolMeta{ABIVersion: abi.Version, CrateName: "slow"},
		Descriptors: []abi.ToolDescriptor{{ID: "work"}},
		Call: func(ctx context.Context, _ abi.CallArgs) abi.CallResult {
			started <- struct{}{}
			<-release
			return abi.CallResult{Result: abi.ResultOk}
		},
	}
	require.NoError(t, b.Add(loader.New(m, "slow.so")))
	reg := b.Build()

	h, ok := reg.Handle(toolid.New("slow", "work"))
	require.True(t, ok)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Call(context.Background(), abi.CallContext{}, nil)
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- reg.Drain(context.Background())
	}()

	// Drain flips the draining flag asynchronously relative to this
	// goroutine; poll the status instead of racing a single Call attempt.
	deadline := time.Now().Add(time.Second)
	for !reg.Draining() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.True(t, reg.Draining(), "registry never started refusing new invocations after Drain")

	_, err := h.Call(context.Background(), abi.CallContext{}, nil)
	require.Error(t, err)
	kind, ok := hosterrors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, hosterrors.KindServiceUnavailable, kind)

	select {
	case <-drainDone:
		t.Fatal("drain resolved before inflight calls completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	wg.Wait()

	select {
	case err := <-drainDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("drain did not resolve after inflight calls completed")
	}
}
