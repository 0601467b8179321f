// Package pipeline threads a single invocation through credential
// marshalling, pre-policy evaluation, the plugin call, and post-policy
// evaluation (§4.6), emitting structured telemetry for every step.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/pluginrt/hostrt/abi"
	"github.com/pluginrt/hostrt/hosterrors"
	"github.com/pluginrt/hostrt/policy"
	"github.com/pluginrt/hostrt/registry"
	"github.com/pluginrt/hostrt/telemetry"
	"github.com/pluginrt/hostrt/toolid"
)

// Outcome classifies how an invocation concluded, for telemetry (§4.6 step
// 6). PluginCrashDetected is never produced by this package: a panic
// inside a plugin call aborts the process per §4.6's crash-isolation note,
// so there is no recoverable path that observes it. It is named here only
// because the specification's telemetry taxonomy includes it.
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeGuardFailed         Outcome = "guard_failed"
	OutcomeToolError           Outcome = "tool_error"
	OutcomePluginCrashDetected Outcome = "plugin_crash_detected"
)

// Request is one invocation frame (§4.6 Input).
type Request struct {
	ToolID          toolid.ID
	Input           []byte
	RequestID       string
	SessionID       string
	UserID          string
	UserCredentials Credentials
}

// Response is the caller-facing result: exactly one of Output or Error is
// meaningful.
type Response struct {
	Output []byte
	Error  string
	// Kind is the hosterrors.Kind of the failure, empty on success.
	Kind hosterrors.Kind
}

// Ok reports whether the invocation succeeded.
func (r Response) Ok() bool { return r.Error == "" }

// Pipeline orchestrates invocations against a fixed registry and policy
// engine. The zero value is not usable; construct with New.
type Pipeline struct {
	registry          *registry.Registry
	policies          *policy.Engine
	systemCredentials map[toolid.ID]Credentials
	logger            telemetry.Logger
	metrics           telemetry.Metrics
	tracer            telemetry.Tracer
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithSystemCredentials registers the per-tool system credentials resolved
// from the manifest, keyed by qualified tool id.
func WithSystemCredentials(creds map[toolid.ID]Credentials) Option {
	return func(p *Pipeline) { p.systemCredentials = creds }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics overrides the default no-op metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// New constructs a Pipeline over reg and policies.
func New(reg *registry.Registry, policies *policy.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: reg,
		policies: policies,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke runs the full pipeline for req. It has no Go error return: every
// runtime failure — missing tool, guard rejection, evaluation error,
// tool-reported error — is reported through the returned Response, per
// §4.6/§7's "return to the caller as structured values, never terminate
// the process" propagation policy.
func (p *Pipeline) Invoke(ctx context.Context, req Request) Response {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = requestID
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.invoke")
	defer span.End()
	span.AddEvent("invoke.start", "tool", string(req.ToolID), "request_id", requestID, "session_id", sessionID)

	handle, ok := p.registry.Handle(req.ToolID)
	if !ok {
		return p.finish(ctx, span, req, requestID, sessionID, start, OutcomeToolError, Response{
			Error: "tool not found: " + string(req.ToolID),
			Kind:  hosterrors.KindToolNotFound,
		})
	}

	systemBlob, userBlob, err := MergeCredentials(p.systemCredentials[req.ToolID], req.UserCredentials)
	if err != nil {
		return p.finish(ctx, span, req, requestID, sessionID, start, OutcomeToolError, Response{
			Error: err.Error(),
			Kind:  hosterrors.KindDeserializationError,
		})
	}

	input, err := policy.DecodeJSON(req.Input)
	if err != nil {
		return p.finish(ctx, span, req, requestID, sessionID, start, OutcomeToolError, Response{
			Error: "invalid input: " + err.Error(),
			Kind:  hosterrors.KindInvalidInput,
		})
	}

	if err := p.policies.EvaluatePre(ctx, sessionID, string(req.ToolID), input); err != nil {
		kind, _ := hosterrors.KindOf(err)
		outcome := OutcomeToolError
		errMsg := err.Error()
		if kind == hosterrors.KindGuardFailed {
			outcome = OutcomeGuardFailed
			if msg, ok := hosterrors.MessageOf(err); ok {
				errMsg = msg
			}
		}
		return p.finish(ctx, span, req, requestID, sessionID, start, outcome, Response{
			Error: errMsg,
			Kind:  kind,
		})
	}

	cc := abi.CallContext{
		RequestID:         requestID,
		SessionID:         sessionID,
		UserID:            req.UserID,
		UserCredentials:   userBlob,
		SystemCredentials: systemBlob,
	}

	result, callErr := handle.Call(ctx, cc, req.Input)
	if callErr != nil {
		kind, _ := hosterrors.KindOf(callErr)
		return p.finish(ctx, span, req, requestID, sessionID, start, OutcomeToolError, Response{
			Error: callErr.Error(),
			Kind:  kind,
		})
	}

	resp := callResultToResponse(result)

	if err := p.policies.EvaluatePost(ctx, sessionID, string(req.ToolID), input, postOutput(result), postErr(resp)); err != nil {
		p.logger.Warn(ctx, "post-policy evaluation failed",
			"tool", string(req.ToolID), "session_id", sessionID, "error", err.Error())
	}

	outcome := OutcomeOK
	if !resp.Ok() {
		outcome = OutcomeToolError
	}
	return p.finish(ctx, span, req, requestID, sessionID, start, outcome, resp)
}

func (p *Pipeline) finish(ctx context.Context, span telemetry.Span, req Request, requestID, sessionID string, start time.Time, outcome Outcome, resp Response) Response {
	latency := time.Since(start)
	p.metrics.RecordTimer("pipeline.invoke.latency", latency,
		"tool", string(req.ToolID), "outcome", string(outcome))
	p.metrics.IncCounter("pipeline.invoke.count", 1,
		"tool", string(req.ToolID), "outcome", string(outcome))
	span.AddEvent("invoke.end", "outcome", string(outcome), "request_id", requestID, "session_id", sessionID)
	if !resp.Ok() {
		span.SetStatus(codes.Error, resp.Error)
	}
	p.logger.Info(ctx, "invocation complete",
		"tool", string(req.ToolID), "request_id", requestID, "session_id", sessionID,
		"outcome", string(outcome), "latency_ms", latency.Milliseconds())
	return resp
}

func postOutput(result abi.CallResult) any {
	if !result.Ok() {
		return nil
	}
	v, err := policy.DecodeJSON(result.Output)
	if err != nil {
		return nil
	}
	return v
}

func postErr(resp Response) error {
	if resp.Ok() {
		return nil
	}
	return hosterrors.New(resp.Kind, resp.Error)
}

func callResultToResponse(result abi.CallResult) Response {
	if result.Ok() {
		return Response{Output: result.Output}
	}
	return Response{Error: result.Message(), Kind: resultKind(result.Result)}
}

func resultKind(r abi.Result) hosterrors.Kind {
	switch r {
	case abi.ResultNotFound:
		return hosterrors.KindToolNotFound
	case abi.ResultInvalidInput:
		return hosterrors.KindInvalidInput
	case abi.ResultAbiMismatch:
		return hosterrors.KindAbiMismatch
	case abi.ResultInitFailed:
		return hosterrors.KindInitFailed
	case abi.ResultCredentialError:
		return hosterrors.KindCredentialError
	default:
		return ""
	}
}
