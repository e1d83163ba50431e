// Package buildplan evaluates a workspace's Cargo build plan (C5): it
// collects the `package.metadata.wharf` table via an exec round trip
// against the tools image, resolves it into a Config, and then invokes
// the external build-plan producer to obtain the ordered list of rustc
// invocations the build graph (C6) is built from.
package buildplan

import (
	"context"
	"encoding/json"
	"path"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/internal/wharflog"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

var log = wharflog.For("buildplan")

const (
	outputLayerPath = "/output"
	buildConfigName = "build-config.json"
	buildPlanName   = "build-plan.json"
)

// RawTargetKind is a Cargo target kind, as reported by a build-plan
// invocation.
type RawTargetKind string

const (
	TargetLib         RawTargetKind = "lib"
	TargetBin         RawTargetKind = "bin"
	TargetTest        RawTargetKind = "test"
	TargetCustomBuild RawTargetKind = "custom-build"
	TargetProcMacro   RawTargetKind = "proc-macro"
	TargetExample     RawTargetKind = "example"
)

// RawInvocation is a single rustc (or build-script) invocation Cargo's
// build plan describes.
type RawInvocation struct {
	PackageName    string            `json:"package_name"`
	PackageVersion string            `json:"package_version"`
	TargetKind     []RawTargetKind   `json:"target_kind"`
	Deps           []int             `json:"deps"`
	Outputs        []string          `json:"outputs"`
	Links          map[string]string `json:"links"`
	Program        string            `json:"program"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	Cwd            string            `json:"cwd"`
}

// RawBuildPlan is the full, ordered set of invocations Cargo's
// `--build-plan`-equivalent emitted.
type RawBuildPlan struct {
	Invocations []RawInvocation `json:"invocations"`
}

// Evaluate runs the build-plan producer against the builder image with
// the resolved config's features/profile/target, and parses its JSON
// output.
func Evaluate(ctx context.Context, br *bridge.Bridge, cfg *Config) (*RawBuildPlan, error) {
	args := []string{
		"--manifest-path", path.Join(wharfconfig.ContextPath, "Cargo.toml"),
		"--output", path.Join(outputLayerPath, buildPlanName),
	}

	if target := cfg.Builder.Target(); target != "" {
		args = append(args, "--target", target)
	}

	if !cfg.DefaultFeatures {
		args = append(args, "--no-default-features")
	}

	for _, feature := range cfg.EnabledFeatures {
		args = append(args, "--feature", feature)
	}

	if cfg.Profile.IsRelease() {
		args = append(args, "--release")
	}

	builderSourceOut := cfg.Builder.Source().Output()
	toolsImageOut := cfg.ToolsImage.Output()
	contextOut := llbop.Local("context").
		CustomName("Using build context").
		AddExcludePattern("**/target").
		Output()

	cmd := cfg.Builder.PopulateEnv(llbop.Run(wharfconfig.ToolBuildPlan)).
		Args(args...).
		Cwd(wharfconfig.ContextPath).
		Mount(llbop.Layer(0, builderSourceOut, "/")).
		Mount(llbop.ReadOnlyLayer(contextOut, wharfconfig.ContextPath)).
		Mount(llbop.ReadOnlySelector(toolsImageOut, wharfconfig.ToolBuildPlan, wharfconfig.ToolBuildPlan)).
		Mount(llbop.Scratch(1, outputLayerPath)).
		CustomName("Evaluating the build plan")

	log.Debug("requesting to solve the build-plan evaluation graph")

	def, err := definitionFor(cmd.Output(1))
	if err != nil {
		return nil, err
	}

	out, err := br.Solve(ctx, def)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to evaluate the build plan")
	}

	raw, err := br.ReadFile(ctx, out, buildPlanName)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to read Cargo build plan")
	}

	var plan RawBuildPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to parse Cargo build plan")
	}

	return &plan, nil
}
