package policy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pluginrt/hostrt/policy"
)

func TestMatchPatternLiteralAndWildcard(t *testing.T) {
	cases := []struct {
		pattern string
		id      string
		want    bool
	}{
		{"group.*", "group.thing", true},
		{"group.*", "groupie.thing", false},
		{"group.*", "group.thing.extra", false},
		{"**", "anything.at.all", true},
		{"foo.**", "foo", true},
		{"foo.**", "foo.bar.baz", true},
		{"foo.**.bar", "foo.bar", true},
		{"foo.**.bar", "foo.x.y.bar", true},
		{"dangerous.*", "dangerous.nuke", true},
		{"to?l.run", "tool.run", true},
		{"to?l.run", "toool.run", false},
		{"exact.tool", "exact.tool", true},
		{"exact.tool", "exact.toolx", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, policy.MatchPattern(tc.pattern, tc.id),
			"pattern %q vs id %q", tc.pattern, tc.id)
	}
}

func TestMatchPatternDeterministic(t *testing.T) {
	got := policy.MatchPattern("group.*", "group.thing")
	for i := 0; i < 10; i++ {
		require.Equal(t, got, policy.MatchPattern("group.*", "group.thing"))
	}
}
