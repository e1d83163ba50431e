// Package sources collects each crate's upstream location (a registry
// URL, the local workspace, or a git checkout) via an exec round trip
// against the tools image, so the build graph can later tell an
// immutable dependency mount apart from a mutable workspace one.
package sources

import (
	"context"
	"encoding/json"
	"path"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/llbserialize"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

const (
	buildPlanLayerPath = "/build-plan"
	buildPlanFileName  = "build-plan.json"

	outputLayerPath = "/output"
	outputFileName  = "sources.json"
)

// SourceKind is where a crate's sources actually live.
type SourceKind struct {
	Registry *string      `json:"registry-url,omitempty"`
	Local    bool         `json:"-"`
	Git      *GitCheckout `json:"-"`
}

// GitCheckout pins a crate to a git repository and, optionally, a
// specific reference (branch, tag, or revision).
type GitCheckout struct {
	Repo      string  `json:"repo"`
	Reference *string `json:"reference"`
}

// MarshalJSON renders SourceKind the way the collector tool's Rust enum
// serializes with serde's kebab-case, externally-tagged representation.
func (k SourceKind) MarshalJSON() ([]byte, error) {
	switch {
	case k.Registry != nil:
		return json.Marshal(map[string]string{"registry-url": *k.Registry})
	case k.Git != nil:
		return json.Marshal(map[string]*GitCheckout{"git-checkout": k.Git})
	default:
		return json.Marshal("local")
	}
}

// UnmarshalJSON parses the three SourceKind shapes: the bare string
// "local", or a single-key object for "registry-url"/"git-checkout".
func (k *SourceKind) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "local" {
			return wharferrors.Newf(wharferrors.ConfigError, "unrecognized source kind %q", tag)
		}
		k.Local = true
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if raw, ok := obj["registry-url"]; ok {
		var url string
		if err := json.Unmarshal(raw, &url); err != nil {
			return err
		}
		k.Registry = &url
		return nil
	}

	if raw, ok := obj["git-checkout"]; ok {
		var checkout GitCheckout
		if err := json.Unmarshal(raw, &checkout); err != nil {
			return err
		}
		k.Git = &checkout
		return nil
	}

	return wharferrors.New(wharferrors.ConfigError, "unrecognized source kind object")
}

// Sources maps a crate's "name:version" identifier to where it came
// from, as reported by the tools image's sources collector.
type Sources struct {
	byID map[string]SourceKind
}

// MarshalJSON/UnmarshalJSON make Sources behave as a transparent map,
// matching the original's `#[serde(transparent)]` wrapper.
func (s Sources) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.byID)
}

func (s *Sources) UnmarshalJSON(data []byte) error {
	var m map[string]SourceKind
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.byID = m
	return nil
}

// Collect runs the sources collector against the builder image, handing
// it the already-evaluated build plan so it only has to resolve each
// invocation's package rather than re-walk the workspace, then reads
// and parses its JSON report.
func Collect(ctx context.Context, br *bridge.Bridge, cfg *buildplan.Config, plan *buildplan.RawBuildPlan) (*Sources, error) {
	planData, err := json.Marshal(plan)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to serialize the build plan")
	}

	buildPlanLayer := llbop.NewSequence().
		Append(llbop.NewMkfile(0, llbop.ScratchPath(buildPlanFileName)).Data(planData)).
		CustomName("Create a temp build plan")

	args := []string{
		"--manifest-path", path.Join(wharfconfig.ContextPath, cfg.ManifestPath()),
		"--build-plan-path", path.Join(buildPlanLayerPath, buildPlanFileName),
		"--output", path.Join(outputLayerPath, outputFileName),
	}

	contextOut := llbop.Local("context").
		CustomName("Using build context").
		AddExcludePattern("**/target").
		Output()

	cmd := cfg.Builder.PopulateEnv(llbop.Run(wharfconfig.ToolSources)).
		Args(args...).
		Cwd(wharfconfig.ContextPath).
		Mount(llbop.Layer(0, cfg.Builder.Source().Output(), "/")).
		Mount(llbop.ReadOnlyLayer(contextOut, wharfconfig.ContextPath)).
		Mount(llbop.ReadOnlyLayer(buildPlanLayer.Output(0), buildPlanLayerPath)).
		Mount(llbop.ReadOnlySelector(cfg.ToolsImage.Output(), wharfconfig.ToolSources, wharfconfig.ToolSources)).
		Mount(llbop.Scratch(1, outputLayerPath)).
		CustomName("Collecting the sources info")

	def, err := llbserialize.Build(llbop.With(cmd.Output(1)))
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to serialize command graph")
	}

	out, err := br.Solve(ctx, def)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to collect sources info")
	}

	raw, err := br.ReadFile(ctx, out, outputFileName)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to read sources info")
	}

	var s Sources
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to parse sources info")
	}

	return &s, nil
}

// FindForNode looks up the source location of the crate a build-graph
// node was compiled from.
func (s *Sources) FindForNode(node *buildgraph.Node) (SourceKind, error) {
	id := node.PackageName + ":" + node.PackageVersion

	kind, ok := s.byID[id]
	if !ok {
		return SourceKind{}, wharferrors.Newf(wharferrors.ConfigError, "unable to find sources location for crate %q", id)
	}

	return kind, nil
}
