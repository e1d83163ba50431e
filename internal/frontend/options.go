// Package frontend is the orchestration shell (C8): it strings together
// config resolution, build-plan evaluation, build-graph construction,
// and LLB query composition into the single BuildFunc the gRPC-over-
// stdio harness invokes, plus the debug-artifact dump path.
package frontend

import (
	"strconv"
	"strings"

	gwclient "github.com/moby/buildkit/frontend/gateway/client"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildplan"
)

// DebugKind is one of the frontend's debug-dump artifact selectors.
type DebugKind int

const (
	DebugConfig DebugKind = iota
	DebugBuildPlan
	DebugBuildGraph
	DebugLLB
	DebugAll
)

func parseDebugKind(s string) (DebugKind, error) {
	switch s {
	case "config":
		return DebugConfig, nil
	case "build-plan":
		return DebugBuildPlan, nil
	case "build-graph":
		return DebugBuildGraph, nil
	case "llb":
		return DebugLLB, nil
	case "all":
		return DebugAll, nil
	default:
		return 0, wharferrors.Newf(wharferrors.ConfigError, "unknown debug artifact %q", s)
	}
}

// Options is the frontend-arg bag BuildKit hands the gateway client,
// parsed out of the flat `--opt key=value` map (`client.BuildOpts().Opts`
// in the real gateway client, unlike the original's structured,
// derive-deserialized `Options`, since this Go harness only ever sees a
// flat string map).
type Options struct {
	Filename          string
	Features          []string
	NoDefaultFeatures bool
	Mode              string
	Debug             []DebugKind

	CacheImports []gwclient.CacheOptionsEntry
	CacheFrom    []gwclient.CacheOptionsEntry
}

// ParseOptions parses the frontend's build options out of the flat
// key/value map the gateway client exposes via BuildOpts().Opts.
func ParseOptions(raw map[string]string) (*Options, error) {
	opts := &Options{
		Filename: raw["filename"],
		Mode:     raw["mode"],
	}

	if v := raw["no-default-features"]; v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, wharferrors.Wrapf(wharferrors.ConfigError, err, "invalid no-default-features value %q", v)
		}
		opts.NoDefaultFeatures = parsed
	}

	if v := raw["features"]; v != "" {
		opts.Features = splitNonEmpty(v, ",")
	}

	if v := raw["debug"]; v != "" {
		for _, part := range splitNonEmpty(v, ",") {
			kind, err := parseDebugKind(part)
			if err != nil {
				return nil, err
			}
			opts.Debug = append(opts.Debug, kind)
		}
	}

	var err error
	if opts.CacheImports, err = parseCacheOptions(raw["cache-imports"]); err != nil {
		return nil, err
	}
	if opts.CacheFrom, err = parseCacheOptions(raw["cache-from"]); err != nil {
		return nil, err
	}

	return opts, nil
}

// CacheEntries returns the structured cache-imports value when present,
// falling back to the legacy cache-from convention, matching the
// original's `Options::cache_entries`.
func (o *Options) CacheEntries() []gwclient.CacheOptionsEntry {
	if len(o.CacheImports) > 0 {
		return o.CacheImports
	}
	return o.CacheFrom
}

// HasDebug reports whether kind (or DebugAll) was requested.
func (o *Options) HasDebug(kind DebugKind) bool {
	for _, k := range o.Debug {
		if k == kind || k == DebugAll {
			return true
		}
	}
	return false
}

// BuildPlanOptions narrows Options to the subset buildplan.Analyse needs.
func (o *Options) BuildPlanOptions() buildplan.Options {
	return buildplan.Options{
		ManifestFilename: o.Filename,
		Mode:             o.Mode,
		DefaultFeatures:  !o.NoDefaultFeatures,
		Features:         o.Features,
	}
}

// parseCacheOptions parses a semicolon-separated list of cache entries,
// each a comma-separated set of key=value attrs (e.g.
// "type=registry,ref=example.com/foo/cache"), or a bare image reference
// for the legacy bare-ref convention (implying type=registry).
func parseCacheOptions(raw string) ([]gwclient.CacheOptionsEntry, error) {
	if raw == "" {
		return nil, nil
	}

	var entries []gwclient.CacheOptionsEntry

	for _, part := range splitNonEmpty(raw, ";") {
		if !strings.Contains(part, "=") {
			entries = append(entries, gwclient.CacheOptionsEntry{
				Type:  "registry",
				Attrs: map[string]string{"ref": part},
			})
			continue
		}

		attrs := make(map[string]string)
		for _, kv := range splitNonEmpty(part, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, wharferrors.Newf(wharferrors.ConfigError, "invalid cache option %q", kv)
			}
			attrs[k] = v
		}

		typ := attrs["type"]
		delete(attrs, "type")
		if typ == "" {
			typ = "registry"
		}

		entries = append(entries, gwclient.CacheOptionsEntry{Type: typ, Attrs: attrs})
	}

	return entries, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
