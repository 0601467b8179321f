package hostruntime

import (
	"context"

	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/toolid"
)

// Local runs tools in-process, delegating to a frozen *registry.Registry
// for discovery/search and a *pipeline.Pipeline for invocation. It
// satisfies both Runtime and transport/grpc's Backend interface
// structurally, so a Local can be handed directly to
// transport/grpc.NewServer to expose it remotely.
type Local struct {
	registry *registry.Registry
	pipeline *pipeline.Pipeline
}

// NewLocal wraps reg and pl as a Runtime.
func NewLocal(reg *registry.Registry, pl *pipeline.Pipeline) *Local {
	return &Local{registry: reg, pipeline: pl}
}

// ListTools implements Runtime.
func (l *Local) ListTools(context.Context) ([]toolid.Descriptor, error) {
	return l.registry.List(), nil
}

// SearchTools implements Runtime.
func (l *Local) SearchTools(_ context.Context, queryEmbedding []float32, topK int) ([]toolid.Descriptor, error) {
	return l.registry.Search(queryEmbedding, topK), nil
}

// CallTool implements Runtime.
func (l *Local) CallTool(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	return l.pipeline.Invoke(ctx, req), nil
}

// Drain implements Runtime.
func (l *Local) Drain(ctx context.Context) error {
	return l.registry.Drain(ctx)
}

// Close releases every loaded tool library. Call after Drain has
// completed.
func (l *Local) Close() {
	l.registry.Close()
}
