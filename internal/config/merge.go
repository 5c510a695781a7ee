package config

import "reflect"

// Merge implements Testable Property 1: for any (defaults, file, programmatic)
// triple, the merged result equals programmatic over (file ⊗ defaults) per
// scalar field, and concatenates array fields across every layer that
// defines them (in layer order: defaults, file, programmatic).
func Merge(defaults, file, programmatic Options) Options {
	out := defaults

	overrideScalars(&out, file)
	overrideScalars(&out, programmatic)

	out.Workers = concatWorkers(defaults.Workers, file.Workers, programmatic.Workers)
	out.KVNamespaces = concatStrings(defaults.KVNamespaces, file.KVNamespaces, programmatic.KVNamespaces)
	out.R2Buckets = concatStrings(defaults.R2Buckets, file.R2Buckets, programmatic.R2Buckets)
	out.Queues = concatQueues(defaults.Queues, file.Queues, programmatic.Queues)
	out.D1Databases = concatStrings(defaults.D1Databases, file.D1Databases, programmatic.D1Databases)
	out.SitesInclude = concatStrings(defaults.SitesInclude, file.SitesInclude, programmatic.SitesInclude)
	out.SitesExclude = concatStrings(defaults.SitesExclude, file.SitesExclude, programmatic.SitesExclude)
	out.Services = concatServices(defaults.Services, file.Services, programmatic.Services)

	return out
}

// overrideScalars copies every non-slice, non-zero field of src onto dst.
// Slice fields are intentionally skipped here; they are concatenated by
// the explicit concat* helpers in Merge so that each layer's contribution
// is preserved instead of replaced.
func overrideScalars(dst *Options, src Options) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	t := sv.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Slice {
			continue
		}
		sf := sv.Field(i)
		if isZero(sf) {
			continue
		}
		dv.Field(i).Set(sf)
	}
}

func isZero(v reflect.Value) bool {
	return v.IsZero()
}

func concatStrings(layers ...[]string) []string {
	var out []string
	for _, l := range layers {
		out = append(out, l...)
	}
	return out
}

func concatWorkers(layers ...[]WorkerOptions) []WorkerOptions {
	var out []WorkerOptions
	for _, l := range layers {
		out = append(out, l...)
	}
	return out
}

func concatQueues(layers ...[]QueueOptions) []QueueOptions {
	var out []QueueOptions
	for _, l := range layers {
		out = append(out, l...)
	}
	return out
}

func concatServices(layers ...[]ServiceOptions) []ServiceOptions {
	var out []ServiceOptions
	for _, l := range layers {
		out = append(out, l...)
	}
	return out
}
