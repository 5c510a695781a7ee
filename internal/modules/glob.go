package modules

import "strings"

// matchGlob implements the narrow subset of glob syntax the default and
// user-declared rules use: `**` matches any number of path segments, `*`
// matches within a single segment. Patterns are matched against
// forward-slash logical paths only.
func matchGlob(pattern, name string) bool {
	return matchSegments(splitPattern(pattern), strings.Split(name, "/"))
}

// MatchGlob exposes the package's glob matcher to other storage
// simulators that filter file paths the same way rule patterns are
// matched against logical module paths (e.g. Sites include/exclude).
func MatchGlob(pattern, name string) bool {
	return matchGlob(pattern, name)
}

func splitPattern(p string) []string {
	return strings.Split(p, "/")
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	head := pattern[0]

	if head == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(name); i++ {
			if matchSegments(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	}

	if len(name) == 0 {
		return false
	}
	if !matchSegment(head, name[0]) {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}

func matchSegment(pattern, segment string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == segment
	}

	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(segment[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	if last := parts[len(parts)-1]; last != "" {
		return strings.HasSuffix(segment, last)
	}
	return true
}
