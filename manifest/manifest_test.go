package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/manifest"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestLoadParsesToolsAndInlinePolicies(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, manifest.DefaultManifestName)
	writeFile(t, manifestPath, `
[[tools]]
name = "greeter"
path = "plugins/greeter.so"
checksum = "abc123"

[[tools]]
package = "weather"
enabled = false

[tools.credentials.openai]
api_key = "sk-test"

[[policies]]
name = "rate-limit"
version = "1.0.0"

[policies.context]
calls = 0
`)

	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	require.Len(t, m.Tools, 2)
	require.Len(t, m.Policies, 1)
	require.Equal(t, "rate-limit", m.Policies[0].Name)
}

func TestResolveToolsInfersPathFromPackageAndSkipsDisabled(t *testing.T) {
	m := manifest.Manifest{
		Tools: []manifest.ToolEntry{
			{Name: "greeter", Path: "plugins/greeter.so"},
			{Package: "weather"},
			{Package: "disabled", Enabled: boolPtr(false)},
		},
	}

	resolved := m.ResolveTools()
	require.Len(t, resolved, 2)
	require.Equal(t, "plugins/greeter.so", resolved[0].Path)
	require.Contains(t, resolved[1].Path, "libweather.so")
}

func TestResolveToolsDefaultsNameFromPath(t *testing.T) {
	m := manifest.Manifest{
		Tools: []manifest.ToolEntry{{Path: "plugins/greeter.so"}},
	}
	resolved := m.ResolveTools()
	require.Equal(t, "greeter.so", resolved[0].Name)
}

func TestResolvePoliciesRejectsUnnamedInlinePolicy(t *testing.T) {
	m := manifest.Manifest{Policies: []manifest.PolicyEntry{{Version: "1.0.0"}}}
	_, err := m.ResolvePolicies(t.TempDir())
	require.Error(t, err)
}

func TestResolvePoliciesLoadsExternalFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blocklist.toml"), `
name = "blocklist"
version = "2.0.0"
`)
	m := manifest.Manifest{Policies: []manifest.PolicyEntry{{Path: "blocklist.toml"}}}

	policies, err := m.ResolvePolicies(dir)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Equal(t, "blocklist", policies[0].Name)
}

func TestResolveHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "custom.toml")
	writeFile(t, override, "")
	t.Setenv(manifest.EnvProjectConfigPath, override)

	path, ok := manifest.Resolve(t.TempDir(), manifest.DefaultManifestName)
	require.True(t, ok)
	require.Equal(t, override, path)
}

func TestResolveReturnsNotOKWhenMissing(t *testing.T) {
	_, ok := manifest.Resolve(t.TempDir(), manifest.DefaultManifestName)
	require.False(t, ok)
}

func boolPtr(b bool) *bool { return &b }
