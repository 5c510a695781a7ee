// Package sites implements the Sites static-asset simulator (spec §4.4
// "Sites"): a manifest of file paths under a root directory, filtered by
// include/exclude globs, served directly from disk.
package sites

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/localdev/hostd/internal/modules"
)

// Asset is one entry in the manifest: a path relative to the site root and
// the content hash computed at manifest build time.
type Asset struct {
	Path string
	Hash string
	Size int64
}

// Manifest maps asset path to its Asset record.
type Manifest map[string]Asset

// BuildManifest walks root and produces a Manifest, applying include/exclude
// glob filters the same way the module collector matches rule patterns
// against logical module paths (spec §4.4: "include/exclude globs filter
// which files participate").
func BuildManifest(root string, include, exclude []string) (Manifest, error) {
	manifest := make(Manifest)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchesFilters(rel, include, exclude) {
			return nil
		}

		hash, size, err := hashFile(path)
		if err != nil {
			return err
		}
		manifest[rel] = Asset{Path: rel, Hash: hash, Size: size}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func matchesFilters(path string, include, exclude []string) bool {
	for _, pattern := range exclude {
		if modules.MatchGlob(pattern, path) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if modules.MatchGlob(pattern, path) {
			return true
		}
	}
	return false
}

func hashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Root resolves an asset's absolute on-disk path given the site root.
func Root(siteRoot, assetPath string) string {
	return filepath.Join(siteRoot, filepath.FromSlash(assetPath))
}
