package modules

import (
	"regexp"
	"strings"
)

// Location pinpoints a dynamic (non-static-string) specifier for error
// reporting (spec §4.3 ERR_MODULE_DYNAMIC_SPEC).
type Location struct {
	Line int
	Col  int
}

// staticImportRe matches ESM import/export-from specifiers with a quoted
// string literal, and bare `require("...")`/`require('...')` calls. This is
// a deliberately narrow, static-import-only scanner (see DESIGN.md) rather
// than a full JS/TS parser: user code is not executed or type-checked here,
// only its import graph is walked.
var staticImportRe = regexp.MustCompile(
	`(?:^|[^.\w])(?:import\s+(?:[\w*{}\s,]+\s+from\s+)?|export\s+(?:[\w*{}\s,]+\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)

// dynamicCallRe matches `import(` or `require(` followed by something other
// than an immediate quoted string literal — a dynamically computed
// specifier, which spec §4.3 requires to fail with ERR_MODULE_DYNAMIC_SPEC.
var dynamicCallRe = regexp.MustCompile(`(?:import|require)\s*\(\s*([^'"]|$)`)

// ParseImports extracts every static import/export/require specifier from
// src. If a dynamic (non-literal) specifier is found first, it returns its
// location instead.
func ParseImports(src string) (specifiers []string, dynamicAt *Location, err error) {
	lines := strings.Split(src, "\n")

	for lineNo, line := range lines {
		if loc := findDynamic(line, lineNo); loc != nil {
			// Only treat as an error if this dynamic-looking call is not
			// actually a static literal caught by staticImportRe on the
			// same line.
			if !staticImportRe.MatchString(line) {
				return nil, loc, nil
			}
		}
	}

	matches := staticImportRe.FindAllStringSubmatch(src, -1)
	for _, m := range matches {
		specifiers = append(specifiers, m[1])
	}
	return specifiers, nil, nil
}

func findDynamic(line string, lineNo int) *Location {
	loc := dynamicCallRe.FindStringIndex(line)
	if loc == nil {
		return nil
	}
	return &Location{Line: lineNo + 1, Col: loc[0] + 1}
}
