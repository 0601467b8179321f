package hostruntime

import (
	"context"

	"github.com/pluginrt/hostrt/pipeline"
	transportgrpc "github.com/pluginrt/hostrt/transport/grpc"
	"github.com/pluginrt/hostrt/toolid"
)

// Remote runs tools behind a ToolHost gRPC server, delegating every
// Runtime method to a transport/grpc.Client connection.
type Remote struct {
	client *transportgrpc.Client
}

// NewRemote wraps an already-dialed client as a Runtime.
func NewRemote(client *transportgrpc.Client) *Remote {
	return &Remote{client: client}
}

// ListTools implements Runtime.
func (r *Remote) ListTools(ctx context.Context) ([]toolid.Descriptor, error) {
	return r.client.ListTools(ctx)
}

// SearchTools implements Runtime.
func (r *Remote) SearchTools(ctx context.Context, queryEmbedding []float32, topK int) ([]toolid.Descriptor, error) {
	return r.client.SearchTools(ctx, queryEmbedding, topK)
}

// CallTool implements Runtime.
func (r *Remote) CallTool(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	return r.client.CallTool(ctx, req)
}

// Drain implements Runtime.
func (r *Remote) Drain(ctx context.Context) error {
	return r.client.Drain(ctx)
}

// Close releases the underlying connection.
func (r *Remote) Close() error {
	return r.client.Close()
}
