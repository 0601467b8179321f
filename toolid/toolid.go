// Package toolid defines the qualified tool identifier and the descriptor
// shape the registry indexes, translating the plugin ABI's static
// ToolDescriptor into the richer, host-owned metadata used by policy and
// search.
package toolid

import (
	"fmt"
	"strings"
)

// ID is a fully qualified tool identifier, rendered as "crate.tool"
// (external callers see it as "tools/crate.tool", see External).
// Use this type rather than a bare string to avoid accidentally mixing
// qualified and unqualified identifiers.
type ID string

// New joins a crate name and an in-crate tool id into a qualified ID.
func New(crate, tool string) ID {
	return ID(crate + "." + tool)
}

// Split divides a qualified ID back into its crate and tool components.
// ok is false when id does not contain a '.' separator.
func (id ID) Split() (crate, tool string, ok bool) {
	s := string(id)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Segments splits a qualified ID on '.' for pattern matching.
func (id ID) Segments() []string {
	return strings.Split(string(id), ".")
}

// External renders the wire form used by the invocation protocol (§6):
// "tools/<crate>.<tool>".
func (id ID) External() string {
	return "tools/" + string(id)
}

// ParseExternal parses the wire form "tools/<crate>.<tool>" back into an
// ID. ok is false when name does not have the "tools/" prefix.
func ParseExternal(name string) (ID, bool) {
	const prefix = "tools/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	return ID(strings.TrimPrefix(name, prefix)), true
}

// Descriptor is the host-owned, immutable metadata for a single tool,
// translated from abi.ToolDescriptor plus its qualified identity and the
// crate-level metadata (version) the registry attaches at load time.
type Descriptor struct {
	// ID is the fully qualified identifier, unique across a registry.
	ID ID
	// CrateVersion is the owning library's informational version string.
	CrateVersion string
	Name         string
	Description  string
	InputSchema  string
	OutputSchema string
	// CredentialSchema is empty when the tool declares no credential schema.
	CredentialSchema string
	Capabilities     []string
	Tags             []string
	// Embedding is empty when the tool opts out of semantic search.
	Embedding []float32
}

// String implements fmt.Stringer for logging.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.ID, d.Name)
}
