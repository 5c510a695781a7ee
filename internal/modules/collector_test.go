package modules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectResolvesRelativeImports(t *testing.T) {
	provider := MemoryProvider{
		"index.js": []byte(`import { helper } from "./lib/helper.js";
const x = require("./other.cjs");
export default x;`),
		"lib/helper.js": []byte(`export const helper = 1;`),
		"other.cjs":     []byte(`module.exports = 1;`),
	}

	c := NewCollector(provider, nil)
	mods, err := c.Collect(context.Background(), "index.js")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, m := range mods {
		names[m.LogicalName] = true
	}
	assert.True(t, names["index.js"])
	assert.True(t, names["lib/helper.js"])
	assert.True(t, names["other.cjs"])
}

func TestCollectPassesThroughReservedSchemes(t *testing.T) {
	provider := MemoryProvider{
		"index.mjs": []byte(`import fs from "node:fs";
import cf from "cloudflare:workers";
export const y = 1;`),
	}
	c := NewCollector(provider, nil)
	mods, err := c.Collect(context.Background(), "index.mjs")
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "index.mjs", mods[0].LogicalName)
}

func TestCollectBreaksCycles(t *testing.T) {
	provider := MemoryProvider{
		"a.js": []byte(`import "./b.js";`),
		"b.js": []byte(`import "./a.js";`),
	}
	c := NewCollector(provider, nil)
	mods, err := c.Collect(context.Background(), "a.js")
	require.NoError(t, err)
	assert.Len(t, mods, 2)
}

func TestCollectFailsOnDynamicSpecifier(t *testing.T) {
	provider := MemoryProvider{
		"a.js": []byte(`const name = computeName();
const mod = require(name);`),
	}
	c := NewCollector(provider, nil)
	_, err := c.Collect(context.Background(), "a.js")
	require.Error(t, err)
}

func TestCollectFailsOnUnknownRule(t *testing.T) {
	provider := MemoryProvider{
		"a.js":     []byte(`import "./data.bin";`),
		"data.bin": []byte("binarydata"),
	}
	c := NewCollector(provider, nil)
	_, err := c.Collect(context.Background(), "a.js")
	require.Error(t, err)
}

func TestCollectHonorsCustomRules(t *testing.T) {
	provider := MemoryProvider{
		"a.js":       []byte(`import "./data.bin";`),
		"data.bin":   []byte("binarydata"),
	}
	rules := append(DefaultRules(), Rule{Pattern: "**/*.bin", Kind: KindData})
	c := NewCollector(provider, rules)
	mods, err := c.Collect(context.Background(), "a.js")
	require.NoError(t, err)
	require.Len(t, mods, 2)
}

func TestMatchGlobDoubleStarAndSingleStar(t *testing.T) {
	assert.True(t, matchGlob("**/*.mjs", "foo/bar.mjs"))
	assert.True(t, matchGlob("**/*.mjs", "bar.mjs"))
	assert.False(t, matchGlob("**/*.mjs", "bar.js"))
	assert.True(t, matchGlob("*.js", "bar.js"))
	assert.False(t, matchGlob("*.js", "foo/bar.js"))
}
