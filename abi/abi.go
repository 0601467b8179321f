// Package abi defines the stable, binary-compatible value types that cross
// the plugin FFI boundary. Every type here is a plain Go value: plugins
// built with "go build -buildmode=plugin" exchange these types with the
// host through a single exported root-module symbol (see package loader).
//
// The layout mirrors the distilled ABI used by the reference runtime this
// module reimplements: a fixed ABI version, crate metadata, an ordered
// descriptor list, and three lifecycle functions (init/call/shutdown).
package abi

import "context"

// Version is the ABI version this runtime is compiled against. A loaded
// plugin whose ToolMeta.ABIVersion differs is rejected outright — there is
// no partial compatibility within a major version.
const Version = 1

// Result is the outcome discriminant of a tool call. Values are stable and
// must not be renumbered: plugins compiled against this package encode
// Result as part of CallResult.
type Result uint8

// Result discriminants. Ok must remain 0; the remaining values are stable
// error classifications surfaced to the host's error-handling layer.
const (
	ResultOk Result = iota
	ResultError
	ResultNotFound
	ResultInvalidInput
	ResultAbiMismatch
	ResultInitFailed
	ResultCredentialError
)

// String renders a human-readable name for logging.
func (r Result) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultError:
		return "error"
	case ResultNotFound:
		return "not_found"
	case ResultInvalidInput:
		return "invalid_input"
	case ResultAbiMismatch:
		return "abi_mismatch"
	case ResultInitFailed:
		return "init_failed"
	case ResultCredentialError:
		return "credential_error"
	default:
		return "unknown"
	}
}

// ToolMeta describes the crate (shared library) a ToolModule belongs to.
type ToolMeta struct {
	// ABIVersion is the ABI version the library was compiled against.
	ABIVersion uint32
	// CrateName is the library's unique name (e.g. "hello-world").
	CrateName string
	// CrateVersion is an informational semantic version string.
	CrateVersion string
}

// ToolDescriptor is the immutable metadata a plugin publishes per tool.
// All string and slice fields are expected to have the lifetime of the
// loaded library image; the host never mutates them.
type ToolDescriptor struct {
	// ID is unique within the owning crate (e.g. "greet").
	ID string
	// Name is a human-readable display name.
	Name string
	// Description explains what the tool does.
	Description string
	// InputSchema is a JSON Schema string describing valid input.
	InputSchema string
	// OutputSchema is a JSON Schema string describing the tool's output.
	OutputSchema string
	// CredentialSchema is an optional JSON Schema for required credentials.
	CredentialSchema string
	// HasCredentialSchema distinguishes "no schema" from an empty schema string.
	HasCredentialSchema bool
	// Capabilities lists required capability tags (e.g. "read", "write").
	Capabilities []string
	// Tags lists free-form categorization labels.
	Tags []string
	// Embedding is a pre-computed embedding vector for semantic search. May
	// be empty when the tool opts out of search indexing.
	Embedding []float32
}

// RuntimeContext is passed to a plugin's Init function. It is reserved for
// host-supplied configuration; the zero value is always valid.
type RuntimeContext struct {
	// InitHints carries optional host-supplied key/value hints for
	// initialization; nil is valid. Plugins are not required to honor them.
	InitHints map[string]string
}

// CallContext carries per-invocation identity and credentials across the
// FFI boundary. Its lifetime is scoped to the synchronous portion of a
// single Call; plugins must not retain references beyond that call.
type CallContext struct {
	RequestID          string
	SessionID          string
	UserID             string
	UserCredentials    []byte // self-describing encoding, see package pipeline
	SystemCredentials  []byte
}

// CallArgs is the argument bundle passed to a plugin's Call function.
type CallArgs struct {
	Context CallContext
	// ToolID is the tool identifier within the owning crate's namespace
	// (not the qualified "crate.tool" form used by the registry).
	ToolID string
	// Input is the JSON-encoded request payload.
	Input []byte
}

// CallResult is the tagged outcome of a Call. Exactly one of Output (on
// ResultOk) or a textual message (any other Result) is meaningful.
type CallResult struct {
	Result Result
	// Output holds the JSON-encoded tool output on ResultOk, or a UTF-8
	// error message otherwise.
	Output []byte
}

// Ok reports whether the call completed successfully.
func (c CallResult) Ok() bool { return c.Result == ResultOk }

// Message returns the error text carried in Output when the call did not
// succeed, or the empty string on ResultOk.
func (c CallResult) Message() string {
	if c.Result == ResultOk {
		return ""
	}
	return string(c.Output)
}

// InitFunc initializes a loaded library. It is invoked exactly once after a
// successful load; any non-nil error is fatal for that library.
type InitFunc func(ctx context.Context, rc RuntimeContext) error

// CallFunc invokes a single tool by ID. The runtime awaits the call's
// context; cancellation must leave the plugin in a recoverable state.
type CallFunc func(ctx context.Context, args CallArgs) CallResult

// ShutdownFunc releases resources held by a loaded library. It must be
// idempotent: the loader guards against multiple invocations, but a
// well-behaved plugin tolerates being called more than once regardless.
type ShutdownFunc func()

// ToolModule is the root object a plugin exposes under the exported symbol
// name Symbol. Its field order is fixed: new fields may only ever be
// appended after Shutdown. The loader accepts the symbol only when it has
// exactly this package's *ToolModule type, so a plugin built against a
// copy of this package with a different field set fails to load; trailing
// fields are not skipped as an unknown suffix. Removing or reordering a
// field is a breaking ABI change and requires bumping Version.
type ToolModule struct {
	Meta        ToolMeta
	Descriptors []ToolDescriptor
	Init        InitFunc
	Call        CallFunc
	Shutdown    ShutdownFunc
}

// Symbol is the name every plugin must export (via a package-level var of
// type ToolModule) for the loader to find it.
const Symbol = "ToolModule"
