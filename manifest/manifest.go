// Package manifest resolves the TOML project manifest (§6) into the inputs
// the rest of the runtime needs at start-up: loader paths and checksums for
// package registry, policy definitions for package policy, and per-tool
// system credentials for the invocation pipeline. Parsing itself is an
// external-collaborator concern per the specification; this package is the
// resolver that sits between the parsed TOML and the in-process runtime.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/pluginrt/hostrt/policy"
)

// EnvCredentialsPath names the variable for overriding the credentials
// file lookup location, mirroring the original runtime's
// "*_CREDENTIALS_PATH" convention for this project. Nothing in this module
// reads it; Resolve consults only EnvProjectConfigPath.
const EnvCredentialsPath = "OPERAI_CREDENTIALS_PATH"

// EnvProjectConfigPath overrides the default project manifest lookup
// location ("*_PROJECT_CONFIG_PATH").
const EnvProjectConfigPath = "OPERAI_PROJECT_CONFIG_PATH"

// DefaultManifestName is the conventional project manifest file name.
const DefaultManifestName = "operai.toml"

// Manifest is the parsed project configuration: the tools to load and the
// policies to register, before resolution against the filesystem.
type Manifest struct {
	Tools    []ToolEntry    `toml:"tools"`
	Policies []PolicyEntry  `toml:"policies"`
}

// ToolEntry describes a single tool library the runtime should load.
type ToolEntry struct {
	// Name is an optional human label; if empty it is inferred from Path's
	// file name when the entry is resolved.
	Name string `toml:"name"`
	// Path is the filesystem path to the compiled plugin. Package is a
	// conventional alternative: "<package>" resolves to
	// "target/release/lib<package>.so" on every platform, following the
	// original tool's build layout.
	Path    string `toml:"path"`
	Package string `toml:"package"`
	// Enabled defaults to true; disabled entries are parsed but not loaded.
	Enabled *bool `toml:"enabled"`
	// Checksum, if set, is a hex SHA-256 digest the loader verifies before
	// opening the library.
	Checksum string `toml:"checksum"`
	// Credentials are this tool's system credentials, provider -> field ->
	// value, merged into the CallContext the pipeline builds for every
	// invocation of this tool.
	Credentials map[string]map[string]string `toml:"credentials"`
}

// enabled reports whether the entry should be loaded, defaulting to true
// when unset.
func (t ToolEntry) enabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// PolicyEntry is either an inline policy definition or a reference to an
// external policy file, mutually exclusive by convention: a non-empty Path
// takes precedence over the inline fields.
type PolicyEntry struct {
	Path    string                    `toml:"path"`
	Name    string                    `toml:"name"`
	Version string                    `toml:"version"`
	Context map[string]any            `toml:"context"`
	Effects []policy.Effect           `toml:"effects"`
}

// ResolvedTool is a tool entry translated into loader-ready inputs.
type ResolvedTool struct {
	Name        string
	Path        string
	Checksum    string
	Credentials map[string]map[string]string
}

// Load reads and parses the manifest at path.
func Load(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	return m, nil
}

// Resolve locates the project manifest using the environment override, if
// set, falling back to name (typically DefaultManifestName) in dir. It
// returns ok=false without error when no manifest file exists at the
// resolved location.
func Resolve(dir, name string) (path string, ok bool) {
	if override := os.Getenv(EnvProjectConfigPath); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, true
		}
		return "", false
	}
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

// ResolveTools translates the manifest's enabled tool entries into loader
// inputs, inferring a path from Package when Path is unset.
func (m Manifest) ResolveTools() []ResolvedTool {
	out := make([]ResolvedTool, 0, len(m.Tools))
	for _, t := range m.Tools {
		if !t.enabled() {
			continue
		}
		path := t.Path
		if path == "" && t.Package != "" {
			path = conventionalPath(t.Package)
		}
		name := t.Name
		if name == "" {
			name = filepath.Base(path)
		}
		out = append(out, ResolvedTool{
			Name:        name,
			Path:        path,
			Checksum:    t.Checksum,
			Credentials: t.Credentials,
		})
	}
	return out
}

func conventionalPath(pkg string) string {
	return filepath.Join("target", "release", "lib"+pkg+".so")
}

// ResolvePolicies loads every policy.Policy named by the manifest,
// resolving Path entries relative to configDir and constructing inline
// entries directly. An inline entry with no Name is an error.
func (m Manifest) ResolvePolicies(configDir string) ([]policy.Policy, error) {
	policies := make([]policy.Policy, 0, len(m.Policies))
	for _, entry := range m.Policies {
		if entry.Path != "" {
			p, err := loadPolicyFile(filepath.Join(configDir, entry.Path))
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
			continue
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("manifest: inline policy must have a name")
		}
		version := entry.Version
		if version == "" {
			version = "0.0.0"
		}
		policies = append(policies, policy.Policy{
			Name:    entry.Name,
			Version: version,
			Context: entry.Context,
			Effects: entry.Effects,
		})
	}
	return policies, nil
}

func loadPolicyFile(path string) (policy.Policy, error) {
	var p policy.Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return policy.Policy{}, fmt.Errorf("manifest: decode policy file %s: %w", path, err)
	}
	return p, nil
}
