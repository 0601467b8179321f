package policy

import "strings"

// MatchPattern reports whether the dotted-segment pattern matches the
// qualified tool id. A pattern segment is one of: a literal, "*" (exactly
// one segment), "**" (zero or more segments), or a literal containing "?"
// (exactly one character at that position). "**" may appear in any segment
// position and is matched with backtracking: it first tries to match zero
// segments, then consumes one more segment at a time.
func MatchPattern(pattern, id string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(id, "."))
}

func matchSegments(pat, seg []string) bool {
	if len(pat) == 0 {
		return len(seg) == 0
	}
	if pat[0] == "**" {
		if matchSegments(pat[1:], seg) {
			return true
		}
		if len(seg) > 0 && matchSegments(pat, seg[1:]) {
			return true
		}
		return false
	}
	if len(seg) == 0 {
		return false
	}
	if !matchSegment(pat[0], seg[0]) {
		return false
	}
	return matchSegments(pat[1:], seg[1:])
}

func matchSegment(pat, seg string) bool {
	if pat == "*" {
		return true
	}
	if len(pat) != len(seg) {
		return false
	}
	for i := 0; i < len(pat); i++ {
		if pat[i] == '?' {
			continue
		}
		if pat[i] != seg[i] {
			return false
		}
	}
	return true
}
