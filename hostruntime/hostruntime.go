// Package hostruntime is the runtime facade (§4.7): it hides whether tool
// invocation happens in-process (Local, backed by package registry and
// package pipeline) or over the wire (Remote, backed by a
// transport/grpc.Client) behind a single Runtime interface. Callers obtain
// one through Builder, grounded on the original runtime's RuntimeBuilder
// local()/remote()/build() shape.
package hostruntime

import (
	"context"

	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/toolid"
)

// Runtime is the facade every caller of this module programs against,
// regardless of whether tools execute in-process or behind a remote
// ToolHost server.
type Runtime interface {
	ListTools(ctx context.Context) ([]toolid.Descriptor, error)
	SearchTools(ctx context.Context, queryEmbedding []float32, topK int) ([]toolid.Descriptor, error)
	CallTool(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	Drain(ctx context.Context) error
}
