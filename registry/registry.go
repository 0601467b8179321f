// Package registry maintains the mapping from qualified tool id to an
// invocable handle, and accounts for inflight requests so that drain is
// correct. See package loader for how libraries are produced and package
// abi for the wire types a handle's Call exchanges with a plugin.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/loader"
	"github.com/pluginrt/hostrt/telemetry"
	"github.com/pluginrt/hostrt/toolid"
)

// Registry is an immutable (after Build), reference-counted-by-sharing
// index of tool handles. The zero value is not usable; construct one via
// Builder.
type Registry struct {
	entries map[toolid.ID]*entry
	order   []toolid.ID
	metrics telemetry.Metrics

	inflight  atomic.Int64
	draining  atomic.Bool
	drainOnce sync.Once
	drained   chan struct{}
}

// Handle is a reference-counted handle to a single registered tool, usable
// for invocation via Call.
type Handle struct {
	reg   *Registry
	entry *entry
}

// Handle returns a handle for the qualified tool id, or ok=false if no such
// id is indexed.
func (r *Registry) Handle(id toolid.ID) (*Handle, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return &Handle{reg: r, entry: e}, true
}

// List returns descriptor snapshots in insertion order.
func (r *Registry) List() []toolid.Descriptor {
	out := make([]toolid.Descriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.entries[id].descriptor
	}
	return out
}

// Call invokes the tool the handle refers to. It increments the registry's
// inflight counter before the call and decrements it after, regardless of
// outcome. Calling Call after Drain has started returns a
// *hosterrors.Error with Kind KindServiceUnavailable without invoking the
// plugin.
func (h *Handle) Call(ctx context.Context, cc abi.CallContext, input []byte) (abi.CallResult, error) {
	if err := h.reg.acquire(); err != nil {
		return abi.CallResult{}, err
	}
	defer h.reg.release()

	result := h.entry.lib.Module().Call(ctx, abi.CallArgs{
		Context: cc,
		ToolID:  h.entry.toolID,
		Input:   input,
	})
	return result, nil
}

// Descriptor returns the handle's tool metadata.
func (h *Handle) Descriptor() toolid.Descriptor { return h.entry.descriptor }

func (r *Registry) acquire() error {
	if r.draining.Load() {
		return hosterrors.Of(hosterrors.KindServiceUnavailable)
	}
	n := r.inflight.Add(1)
	r.metrics.RecordGauge("registry.inflight", float64(n))
	if r.draining.Load() {
		r.release()
		return hosterrors.Of(hosterrors.KindServiceUnavailable)
	}
	return nil
}

func (r *Registry) release() {
	n := r.inflight.Add(-1)
	r.metrics.RecordGauge("registry.inflight", float64(n))
	if n == 0 && r.draining.Load() {
		r.drainOnce.Do(func() { close(r.drained) })
	}
}

// Drain refuses new invocations (new Call attempts return
// ServiceUnavailable) and blocks until every invocation already in flight
// has returned, or ctx is canceled first. Drain is idempotent: calling it
// again after it has already completed returns immediately.
func (r *Registry) Drain(ctx context.Context) error {
	start := time.Now()
	r.draining.Store(true)
	if r.inflight.Load() == 0 {
		r.drainOnce.Do(func() { close(r.drained) })
	}
	select {
	case <-r.drained:
		r.metrics.RecordTimer("registry.drain.duration", time.Since(start))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Draining reports whether Drain has been called, i.e. whether new Call
// attempts will currently be refused.
func (r *Registry) Draining() bool { return r.draining.Load() }

// Close calls Shutdown on every distinct loaded library exactly once. It
// should be called after Drain has completed.
func (r *Registry) Close() {
	seen := make(map[*loader.Library]struct{})
	for _, id := range r.order {
		lib := r.entries[id].lib
		if _, ok := seen[lib]; ok {
			continue
		}
		seen[lib] = struct{}{}
		lib.Shutdown()
	}
}
