package hostruntime

import (
	"context"
	"fmt"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/manifest"
	"github.com/pluginrt/hostrt/pipeline"
	"github.com/pluginrt/hostrt/policy"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/session"
	"github.com/pluginrt/hostrt/session/inmem"
	"github.com/pluginrt/hostrt/telemetry"
	transportgrpc "github.com/pluginrt/hostrt/transport/grpc"
	"github.com/pluginrt/hostrt/toolid"
)

// mode selects how Builder.Build constructs its Runtime.
type mode int

const (
	modeLocal mode = iota
	modeRemote
)

// Builder assembles a Runtime from a project manifest (local mode) or a
// ToolHost server address (remote mode), mirroring the original runtime's
// RuntimeBuilder fluent local()/remote()/build() shape.
type Builder struct {
	manifestDir  string
	manifestName string
	runtimeCtx   abi.RuntimeContext
	mode         mode
	endpoint     string
	store        session.Store
	logger       telemetry.Logger
	metrics      telemetry.Metrics
	tracer       telemetry.Tracer
}

// NewBuilder returns a Builder defaulted to local mode, the manifest
// resolved from the current directory, and noop telemetry.
func NewBuilder() *Builder {
	return &Builder{
		manifestDir:  ".",
		manifestName: manifest.DefaultManifestName,
		mode:         modeLocal,
		logger:       telemetry.NewNoopLogger(),
		metrics:      telemetry.NewNoopMetrics(),
		tracer:       telemetry.NewNoopTracer(),
	}
}

// WithManifestPath overrides the directory Build resolves the project
// manifest from (§6's env-override-then-directory-check resolution still
// applies within that directory).
func (b *Builder) WithManifestPath(dir string) *Builder {
	b.manifestDir = dir
	return b
}

// WithManifestName overrides the conventional manifest file name.
func (b *Builder) WithManifestName(name string) *Builder {
	b.manifestName = name
	return b
}

// WithRuntimeContext overrides the abi.RuntimeContext passed to every
// loaded tool's Init.
func (b *Builder) WithRuntimeContext(rc abi.RuntimeContext) *Builder {
	b.runtimeCtx = rc
	return b
}

// WithSessionStore overrides the session.Store backing the policy engine.
// Defaults to an in-memory store.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithTelemetry overrides the logger/metrics/tracer used by the local
// pipeline. Remote mode ignores this, since telemetry is emitted
// server-side.
func (b *Builder) WithTelemetry(logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) *Builder {
	b.logger, b.metrics, b.tracer = logger, metrics, tracer
	return b
}

// Local selects in-process tool execution (the default).
func (b *Builder) Local() *Builder {
	b.mode = modeLocal
	return b
}

// Remote selects wire execution against a ToolHost server at endpoint.
func (b *Builder) Remote(endpoint string) *Builder {
	b.mode = modeRemote
	b.endpoint = endpoint
	return b
}

// Build resolves the selected mode into a ready-to-use Runtime.
func (b *Builder) Build(ctx context.Context) (Runtime, error) {
	switch b.mode {
	case modeRemote:
		return b.buildRemote(ctx)
	default:
		return b.buildLocal(ctx)
	}
}

func (b *Builder) buildRemote(ctx context.Context) (Runtime, error) {
	client, err := transportgrpc.Dial(ctx, b.endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("hostruntime: dial remote %s: %w", b.endpoint, err)
	}
	return NewRemote(client), nil
}

// buildLocal loads whatever manifest is present (an absent manifest is not
// an error: the runtime starts with no tools and no policies, matching the
// original builder's "manifest optional" behavior), loading each enabled
// tool and registering each policy. A single tool failing to load, init or
// register, or a single policy failing to compile, is logged and skipped
// rather than aborting the whole build. A policy entry that cannot be
// resolved at all (an unreadable policy file, or an inline entry with no
// name) fails the build with an error.
func (b *Builder) buildLocal(ctx context.Context) (Runtime, error) {
	m, manifestDir, err := b.loadManifest()
	if err != nil {
		return nil, err
	}

	regBuilder := registry.NewBuilder().WithMetrics(b.metrics)
	credentials := make(map[toolid.ID]pipeline.Credentials)
	for _, t := range m.ResolveTools() {
		lib, err := loader.Load(resolveToolPath(manifestDir, t.Path), t.Checksum)
		if err != nil {
			b.logger.Warn(ctx, "skipping tool: load failed", "tool", t.Name, "path", t.Path, "error", err.Error())
			continue
		}
		if err := lib.Init(ctx, b.runtimeCtx); err != nil {
			b.logger.Warn(ctx, "skipping tool: init failed", "tool", t.Name, "path", t.Path, "error", err.Error())
			continue
		}
		if err := regBuilder.Add(lib); err != nil {
			b.logger.Warn(ctx, "skipping tool: registry rejected descriptors", "tool", t.Name, "error", err.Error())
			continue
		}
		if len(t.Credentials) > 0 {
			for _, d := range lib.Module().Descriptors {
				credentials[toolid.New(lib.Module().Meta.CrateName, d.ID)] = t.Credentials
			}
		}
	}
	reg := regBuilder.Build()

	store := b.store
	if store == nil {
		store = inmem.New()
	}
	engine := policy.NewEngine(store)
	policies, err := m.ResolvePolicies(manifestDir)
	if err != nil {
		return nil, fmt.Errorf("hostruntime: resolve policies: %w", err)
	}
	for _, p := range policies {
		if err := engine.Register(p); err != nil {
			b.logger.Warn(ctx, "skipping policy: compile failed", "policy", p.Name, "error", err.Error())
			continue
		}
	}

	pl := pipeline.New(reg, engine,
		pipeline.WithSystemCredentials(credentials),
		pipeline.WithLogger(b.logger),
		pipeline.WithMetrics(b.metrics),
		pipeline.WithTracer(b.tracer))

	return NewLocal(reg, pl), nil
}

// resolveToolPath resolves a manifest-relative tool path against
// manifestDir; an already-absolute path is left untouched. Grounded on
// original_source/crates/operai-core/src/config.rs's resolve_tool_path.
func resolveToolPath(manifestDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(manifestDir, path)
}

func (b *Builder) loadManifest() (manifest.Manifest, string, error) {
	path, ok := manifest.Resolve(b.manifestDir, b.manifestName)
	if !ok {
		return manifest.Manifest{}, b.manifestDir, nil
	}
	m, err := manifest.Load(path)
	if err != nil {
		return manifest.Manifest{}, "", fmt.Errorf("hostruntime: load manifest %s: %w", path, err)
	}
	return m, b.manifestDir, nil
}
