package registry

import (
	"fmt"

	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/telemetry"
	"github.com/pluginrt/hostrt/toolid"
)

type entry struct {
	descriptor toolid.Descriptor
	lib        *loader.Library
	toolID     string // unqualified id within the owning crate
}

// Builder accumulates loaded libraries into a registry. It is not safe for
// concurrent use; build the registry on a single goroutine during startup,
// then share the frozen *Registry it produces.
type Builder struct {
	entries map[toolid.ID]*entry
	order   []toolid.ID
	metrics telemetry.Metrics
}

// NewBuilder returns an empty Builder with noop metrics.
func NewBuilder() *Builder {
	return &Builder{
		entries: make(map[toolid.ID]*entry),
		metrics: telemetry.NewNoopMetrics(),
	}
}

// WithMetrics attaches a metrics recorder the built Registry uses to
// report its inflight gauge and drain duration.
func (b *Builder) WithMetrics(m telemetry.Metrics) *Builder {
	b.metrics = m
	return b
}

// Add indexes every descriptor the library publishes under
// "<crate_name>.<tool_id>". It returns an error without modifying the
// builder if any resulting qualified id collides with one already added.
func (b *Builder) Add(lib *loader.Library) error {
	module := lib.Module()

	qualified := make([]toolid.ID, 0, len(module.Descriptors))
	for _, d := range module.Descriptors {
		qid := toolid.New(module.Meta.CrateName, d.ID)
		if _, exists := b.entries[qid]; exists {
			return fmt.Errorf("registry: duplicate qualified tool id %q", qid)
		}
		for _, seen := range qualified {
			if seen == qid {
				return fmt.Errorf("registry: duplicate qualified tool id %q within library %q", qid, lib.Path())
			}
		}
		qualified = append(qualified, qid)
	}

	// Validate every descriptor's schemas before committing any of them, so
	// a single bad descriptor in a multi-tool library can't leave earlier
	// descriptors from the same Add call already indexed despite the whole
	// call returning an error.
	for i, d := range module.Descriptors {
		qid := qualified[i]
		if err := validateSchema(string(qid)+".input", d.InputSchema); err != nil {
			return fmt.Errorf("registry: tool %q: invalid input schema: %w", qid, err)
		}
		if err := validateSchema(string(qid)+".output", d.OutputSchema); err != nil {
			return fmt.Errorf("registry: tool %q: invalid output schema: %w", qid, err)
		}
	}

	for i, d := range module.Descriptors {
		qid := qualified[i]
		b.entries[qid] = &entry{
			descriptor: toolid.Descriptor{
				ID:               qid,
				CrateVersion:     module.Meta.CrateVersion,
				Name:             d.Name,
				Description:      d.Description,
				InputSchema:      d.InputSchema,
				OutputSchema:     d.OutputSchema,
				CredentialSchema: d.CredentialSchema,
				Capabilities:     d.Capabilities,
				Tags:             d.Tags,
				Embedding:        d.Embedding,
			},
			lib:    lib,
			toolID: d.ID,
		}
		b.order = append(b.order, qid)
	}
	return nil
}

// Build freezes the builder into an immutable, reference-counted-by-sharing
// Registry. The builder must not be reused after calling Build.
func (b *Builder) Build() *Registry {
	r := &Registry{
		entries: b.entries,
		order:   b.order,
		metrics: b.metrics,
	}
	r.drained = make(chan struct{})
	return r
}
