// Package modules resolves user code into the runtime's module manifest
// (spec §4.3): parsing static import/export declarations and CommonJS
// require() calls, resolving specifiers against rules, and recursing while
// breaking cycles.
package modules

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/localdev/hostd/internal/emuerr"
)

// BodyKind is the module body kind enumeration (spec §3 "Module record").
type BodyKind string

const (
	KindESM          BodyKind = "ESM"
	KindCommonJS     BodyKind = "CommonJS"
	KindNodeJsCompat BodyKind = "NodeJsCompat"
	KindText         BodyKind = "Text"
	KindData         BodyKind = "Data"
	KindCompiledWasm BodyKind = "CompiledWasm"
	KindJSON         BodyKind = "JSON"
)

// reservedSchemePrefixes are specifiers passed through untouched (spec
// §4.3).
var reservedSchemePrefixes = []string{"node:", "cloudflare:", "workerd:"}

// Rule maps a glob pattern to a body kind.
type Rule struct {
	Pattern string
	Kind    BodyKind
}

// DefaultRules returns the built-in rule set (spec §4.3).
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "**/*.mjs", Kind: KindESM},
		{Pattern: "**/*.js", Kind: KindCommonJS},
		{Pattern: "**/*.cjs", Kind: KindCommonJS},
	}
}

// Module is one resolved module record (spec §3 "Module record").
type Module struct {
	LogicalName  string // forward-slash path relative to modules root
	Kind         BodyKind
	Body         []byte
	SourceMapID  string
}

// SourceProvider reads the text of a module by its resolved filesystem path,
// relative to the modules root. Abstracted so tests can supply an in-memory
// filesystem.
type SourceProvider interface {
	Read(logicalPath string) ([]byte, bool, error)
}

// Collector resolves a worker's entrypoint (or explicit module list) into a
// full module manifest.
type Collector struct {
	Rules    []Rule
	Provider SourceProvider
}

func NewCollector(provider SourceProvider, rules []Rule) *Collector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Collector{Rules: rules, Provider: provider}
}

// Collect walks the import graph starting at entrypoint and returns every
// reachable module, or an *emuerr.Error on the first resolution failure.
func (c *Collector) Collect(ctx context.Context, entrypoint string) ([]Module, error) {
	state := &walkState{
		visited: make(map[string]bool),
		modules: make(map[string]Module),
	}
	if err := c.walk(ctx, entrypoint, state); err != nil {
		return nil, err
	}
	return state.ordered(), nil
}

type walkState struct {
	mu      walkMutex
	visited map[string]bool
	order   []string
	modules map[string]Module
}

// walkMutex is a tiny mutex alias kept as a named type so the zero value is
// usable without an explicit constructor, matching the style of small
// synchronization helpers elsewhere in this module.
type walkMutex struct{ ch chan struct{} }

func (m *walkMutex) lock() {
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	m.ch <- struct{}{}
}
func (m *walkMutex) unlock() { <-m.ch }

func (s *walkState) record(m Module) {
	s.mu.lock()
	defer s.mu.unlock()
	if _, ok := s.modules[m.LogicalName]; !ok {
		s.order = append(s.order, m.LogicalName)
	}
	s.modules[m.LogicalName] = m
}

func (s *walkState) markVisited(logical string) bool {
	s.mu.lock()
	defer s.mu.unlock()
	if s.visited[logical] {
		return false
	}
	s.visited[logical] = true
	return true
}

func (s *walkState) ordered() []Module {
	out := make([]Module, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.modules[name])
	}
	return out
}

func (c *Collector) walk(ctx context.Context, logicalPath string, state *walkState) error {
	if !state.markVisited(logicalPath) {
		return nil // cycle broken by visited-path set
	}

	src, ok, err := c.Provider.Read(logicalPath)
	if err != nil {
		return emuerr.Wrap(emuerr.KindModule, emuerr.CodeModuleParse, err).WithLocation(logicalPath, 0, 0)
	}
	if !ok {
		return emuerr.New(emuerr.KindModule, emuerr.CodeModuleRule,
			fmt.Sprintf("no module found at %q", logicalPath))
	}

	kind, err := c.matchRule(logicalPath)
	if err != nil {
		return err
	}

	state.record(Module{LogicalName: logicalPath, Kind: kind, Body: src})

	if !isJavaScript(kind) {
		return nil
	}

	specifiers, dynamicAt, err := ParseImports(string(src))
	if err != nil {
		return emuerr.Wrap(emuerr.KindModule, emuerr.CodeModuleParse, err).WithLocation(logicalPath, 0, 0)
	}
	if dynamicAt != nil {
		return emuerr.New(emuerr.KindModule, emuerr.CodeModuleDynamicSpec,
			"dynamic import/require specifier is not a static string literal").
			WithLocation(logicalPath, dynamicAt.Line, dynamicAt.Col)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specifiers {
		spec := spec
		if isReservedScheme(spec) {
			continue
		}
		resolved := resolveSpecifier(logicalPath, spec)
		g.Go(func() error {
			return c.walk(gctx, resolved, state)
		})
	}
	return g.Wait()
}

func isReservedScheme(spec string) bool {
	for _, p := range reservedSchemePrefixes {
		if strings.HasPrefix(spec, p) {
			return true
		}
	}
	return false
}

func isJavaScript(k BodyKind) bool {
	return k == KindESM || k == KindCommonJS || k == KindNodeJsCompat
}

// resolveSpecifier resolves a relative/absolute specifier against the
// referencing module's directory, always producing a forward-slash logical
// name regardless of host OS (spec §4.3).
func resolveSpecifier(referencingLogicalPath, specifier string) string {
	dir := path.Dir(referencingLogicalPath)
	joined := path.Join(dir, specifier)
	return path.Clean(joined)
}

func (c *Collector) matchRule(logicalPath string) (BodyKind, error) {
	for _, r := range c.Rules {
		if matchGlob(r.Pattern, logicalPath) {
			return r.Kind, nil
		}
	}
	suggestion := ""
	if looksLikeNodeBuiltin(logicalPath) {
		suggestion = " (looked like a Node built-in; did you mean a node: specifier?)"
	}
	return "", emuerr.New(emuerr.KindModule, emuerr.CodeModuleRule,
		fmt.Sprintf("no rule matches %q%s", logicalPath, suggestion))
}

func looksLikeNodeBuiltin(p string) bool {
	base := path.Base(p)
	for _, b := range []string{"fs", "path", "crypto", "stream", "buffer", "events", "util"} {
		if base == b || base == b+".js" {
			return true
		}
	}
	return false
}
