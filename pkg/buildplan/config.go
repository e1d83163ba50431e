package buildplan

import (
	"context"
	"encoding/json"
	"path"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// Config is the fully resolved configuration driving the rest of the
// pipeline: the merged builder/output images (C4), the binary
// destinations, feature/profile selection for this invocation, and the
// shared tools image every helper step mounts read-only.
type Config struct {
	Builder *wharfconfig.BuilderConfig
	Output  *wharfconfig.OutputConfig

	ToolsImage *llbop.Source

	Binaries []wharfconfig.BinaryDefinition

	Profile         Profile
	DefaultFeatures bool
	EnabledFeatures []string

	// ManifestFilename is the Cargo.toml location relative to the build
	// context, defaulting to "Cargo.toml".
	ManifestFilename string
}

// ManifestPath returns the manifest location relative to the build
// context root, defaulting to "Cargo.toml" when unset.
func (c *Config) ManifestPath() string {
	if c.ManifestFilename == "" {
		return "Cargo.toml"
	}
	return c.ManifestFilename
}

// Options is the subset of frontend build options relevant to config
// analysis: the Cargo.toml location override, the mode (Profile)
// selection, and feature flags — mirroring the original's `Options` bag
// of frontend-args key/value pairs.
type Options struct {
	ManifestFilename string
	Mode             string
	DefaultFeatures  bool
	Features         []string
}

// Analyse collects every workspace member's `package.metadata.wharf`
// table via the metadata-collector tool, validates/merges it into a
// ConfigBase, and resolves the builder/output images against their live
// OCI config.
func Analyse(ctx context.Context, br *bridge.Bridge, opts Options) (*Config, error) {
	manifestFilename := opts.ManifestFilename
	if manifestFilename == "" {
		manifestFilename = "Cargo.toml"
	}

	toolsImage := llbop.Image(wharfconfig.ToolsImageRef)
	dockerfileCtx := llbop.Local("dockerfile").
		CustomName("Using build context").
		AddExcludePattern("**/target")

	cmd := llbop.Run(wharfconfig.ToolMetadataCollector).
		Args(
			"--manifest-path", path.Join(wharfconfig.DockerfilePath, manifestFilename),
			"--output", path.Join(outputLayerPath, buildConfigName),
		).
		Cwd(wharfconfig.DockerfilePath).
		Mount(llbop.Layer(0, toolsImage.Output(), "/")).
		Mount(llbop.ReadOnlyLayer(dockerfileCtx.Output(), wharfconfig.DockerfilePath)).
		Mount(llbop.Scratch(1, outputLayerPath)).
		CustomName("Collecting configuration metadata")

	def, err := definitionFor(cmd.Output(1))
	if err != nil {
		return nil, err
	}

	out, err := br.Solve(ctx, def)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to collect metadata")
	}

	raw, err := br.ReadFile(ctx, out, buildConfigName)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to read metadata output")
	}

	var members []wharfconfig.RawMetadata
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to parse configuration metadata")
	}

	base, err := wharfconfig.ExtractConfigBase(members)
	if err != nil {
		return nil, err
	}

	builder, err := wharfconfig.AnalyseBuilder(ctx, br, base.Builder)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to analyse builder image")
	}

	output, err := wharfconfig.AnalyseOutput(ctx, br, base.Output)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to analyse output image")
	}

	profile, err := ParseProfile(opts.Mode)
	if err != nil {
		return nil, err
	}

	return &Config{
		Builder:          builder,
		Output:           output,
		ToolsImage:       toolsImage,
		Binaries:         base.Binaries,
		Profile:          profile,
		DefaultFeatures:  opts.DefaultFeatures,
		EnabledFeatures:  opts.Features,
		ManifestFilename: manifestFilename,
	}, nil
}

// FindBinary looks up a binary's destination by its Cargo target name.
func (c *Config) FindBinary(name string) (wharfconfig.BinaryDefinition, bool) {
	for _, b := range c.Binaries {
		if b.Name == name {
			return b, true
		}
	}
	return wharfconfig.BinaryDefinition{}, false
}
