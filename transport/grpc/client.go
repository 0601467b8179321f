package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/toolid"
)

// Client is a thin wrapper around a ToolHost gRPC connection, used by
// hostruntime's remote mode (§4.7).
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a remote ToolHost server at target.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport/grpc: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListTools calls the remote ListTools RPC.
func (c *Client) ListTools(ctx context.Context) ([]toolid.Descriptor, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ListTools", &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return structToDescriptors(out), nil
}

// SearchTools calls the remote SearchTools RPC.
func (c *Client) SearchTools(ctx context.Context, queryEmbedding []float32, topK int) ([]toolid.Descriptor, error) {
	req, err := searchQueryToStruct(queryEmbedding, topK)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/SearchTools", req, out); err != nil {
		return nil, err
	}
	return structToDescriptors(out), nil
}

// CallTool calls the remote CallTool RPC.
func (c *Client) CallTool(ctx context.Context, req pipeline.Request) (pipeline.Response, error) {
	wireReq, err := requestToStruct(req)
	if err != nil {
		return pipeline.Response{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/CallTool", wireReq, out); err != nil {
		return pipeline.Response{}, err
	}
	return structToResponse(out)
}

// Drain calls the remote Drain RPC.
func (c *Client) Drain(ctx context.Context) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/Drain", &emptypb.Empty{}, new(emptypb.Empty))
}
