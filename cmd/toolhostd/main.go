// Command toolhostd is a thin CLI front-end: it builds a local runtime
// from a project manifest and serves it over gRPC, blocking until the
// context is canceled or a termination signal arrives. Grounded on the
// teacher's own cmd/demo ("load config, build runtime, run") and on
// registry/registry.go's Run method for the graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/pluginrt/hostrt/hostruntime"
	"github.com/pluginrt/hostrt/telemetry"
	transportgrpc "github.com/pluginrt/hostrt/transport/grpc"
)

// drainTimeout bounds how long toolhostd waits for inflight tool calls to
// finish during shutdown before giving up and exiting anyway.
const drainTimeout = 30 * time.Second

func main() {
	var (
		addr        = flag.String("addr", ":7090", "address to listen on")
		manifestDir = flag.String("manifest-dir", ".", "directory to resolve the project manifest from")
	)
	flag.Parse()

	if err := run(*addr, *manifestDir); err != nil {
		log.Fatal(err)
	}
}

func run(addr, manifestDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.NewClueLogger()

	rt, err := hostruntime.NewBuilder().
		WithManifestPath(manifestDir).
		WithTelemetry(logger, telemetry.NewClueMetrics(), telemetry.NewClueTracer()).
		Local().
		Build(ctx)
	if err != nil {
		return fmt.Errorf("toolhostd: build runtime: %w", err)
	}
	local, ok := rt.(*hostruntime.Local)
	if !ok {
		return fmt.Errorf("toolhostd: local build unexpectedly produced %T", rt)
	}
	defer local.Close()

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("toolhostd: listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	transportgrpc.RegisterToolHostServer(grpcServer, transportgrpc.NewServer(local))

	errCh := make(chan error, 1)
	go func() { errCh <- grpcServer.Serve(lis) }()

	logger.Info(ctx, "toolhostd listening", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("toolhostd: serve: %w", err)
	}

	grpcServer.GracefulStop()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := local.Drain(drainCtx); err != nil {
		logger.Warn(context.Background(), "drain did not complete cleanly", "error", err.Error())
	}
	return nil
}
