package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix stripped from environment variables that override
// the merged configuration (e.g. HOSTD_KV_PERSIST).
const EnvPrefix = "HOSTD_"

// Load builds the merged Options following spec §3's layering: defaults ◁
// file-config ◁ programmatic options, followed by an environment-variable
// override pass so operators can flip top-level fields (persistence roots,
// ports, log level, ...) without touching a config file.
//
// filePath may be empty, in which case the file layer contributes nothing.
func Load(filePath string, programmatic Options) (*Options, error) {
	defaults := Defaults()

	fileOpts, err := loadFileLayer(filePath)
	if err != nil {
		return nil, fmt.Errorf("config: loading file layer: %w", err)
	}

	merged := Merge(defaults, fileOpts, programmatic)

	if err := applyEnvOverrides(&merged); err != nil {
		return nil, fmt.Errorf("config: applying env overrides: %w", err)
	}

	if err := Validate(&merged); err != nil {
		return nil, err
	}

	return &merged, nil
}

func loadFileLayer(filePath string) (Options, error) {
	if filePath == "" {
		return Options{}, nil
	}
	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return Options{}, nil
		}
		return Options{}, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		return Options{}, err
	}

	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// applyEnvOverrides layers environment variables on top of the merged
// result as the final, highest-priority override — mirroring the teacher's
// env.Provider usage. HOSTD_<KEY> maps to the top-level koanf key <key>
// (lower-cased); any top-level Options key can be overridden this way.
func applyEnvOverrides(opts *Options) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(*opts, "koanf"), nil); err != nil {
		return err
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return err
	}

	return k.Unmarshal("", opts)
}

// LoadFromMap is a test/embedding convenience that treats an arbitrary map
// as the programmatic layer, going through koanf's confmap provider so
// callers can supply loosely-typed option bags (e.g. from a CLI flag
// parser) rather than a pre-built Options value.
func LoadFromMap(filePath string, programmatic map[string]interface{}) (*Options, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(programmatic, "."), nil); err != nil {
		return nil, err
	}
	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return nil, err
	}
	return Load(filePath, opts)
}
