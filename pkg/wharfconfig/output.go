package wharfconfig

import (
	"context"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/oci"
)

// OutputConfig is the output image resolved against its live OCI
// config, or the scratch sentinel when `output.image = "scratch"`.
type OutputConfig struct {
	source *llbop.Source // nil for scratch

	overrides RawOutputConfig
	mergedEnv map[string]string
	user      string
	workdir   string
	entrypoint []string
	cmd       []string
	stopSignal oci.Signal
}

// AnalyseOutput resolves raw against the output image's live config, or
// builds the scratch sentinel when the image is literally "scratch".
func AnalyseOutput(ctx context.Context, br *bridge.Bridge, raw RawOutputConfig) (*OutputConfig, error) {
	if raw.Image == "scratch" {
		return &OutputConfig{
			overrides: raw,
			mergedEnv: mergeEnv(nil, raw.Env),
		}, nil
	}

	if err := validateImageRef(raw.Image); err != nil {
		return nil, err
	}

	source := llbop.Image(raw.Image).WithResolveMode(llbop.ResolveModePreferLocal)

	digest, spec, err := br.ResolveImageConfig(ctx, raw.Image, "Resolving output image")
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to resolve image config")
	}

	if digest != "" {
		source = source.WithDigest(digest)
	}

	var baseEnv map[string]string
	var baseUser, baseWorkdir string
	var baseEntrypoint, baseCmd []string
	var baseStopSignal oci.Signal

	if spec.Config != nil {
		baseEnv = spec.Config.Env
		baseUser = spec.Config.User
		baseWorkdir = spec.Config.WorkingDir
		baseEntrypoint = spec.Config.Entrypoint
		baseCmd = spec.Config.Cmd
		baseStopSignal = oci.Signal(spec.Config.StopSignal)
	}

	merged := mergeEnv(baseEnv, raw.Env)

	return &OutputConfig{
		source:     source,
		overrides:  raw,
		mergedEnv:  merged,
		user:       firstNonEmpty(raw.User, baseUser),
		workdir:    firstNonEmpty(raw.Workdir, baseWorkdir),
		entrypoint: firstNonEmptySlice(raw.Entrypoint, baseEntrypoint),
		cmd:        firstNonEmptySlice(raw.Args, baseCmd),
		stopSignal: firstNonEmptySignal(raw.StopSignal, baseStopSignal),
	}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptySlice(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

func firstNonEmptySignal(a, b oci.Signal) oci.Signal {
	if a != "" {
		return a
	}
	return b
}

// NewOutputConfigForTest builds an OutputConfig directly from already-
// resolved fields, bypassing AnalyseOutput's bridge round trip — source
// nil means scratch, matching the original's test-only `mocked_new`.
func NewOutputConfigForTest(source *llbop.Source, overrides RawOutputConfig, env map[string]string) *OutputConfig {
	return &OutputConfig{
		source:     source,
		overrides:  overrides,
		mergedEnv:  env,
		user:       overrides.User,
		workdir:    overrides.Workdir,
		entrypoint: overrides.Entrypoint,
		cmd:        overrides.Args,
		stopSignal: overrides.StopSignal,
	}
}

// IsScratch reports whether the output image is the literal empty
// scratch layer rather than a pulled base image.
func (c *OutputConfig) IsScratch() bool { return c.source == nil }

// Source returns the output's image source, or nil for scratch.
func (c *OutputConfig) Source() *llbop.Source { return c.source }

// LayerPath builds a LayerPath rooted at the output's base layer
// (scratch, if there is no base image, or the pulled image's output
// otherwise), matching the original's `OutputConfig::layer_path`.
func (c *OutputConfig) LayerPath(path string) llbop.LayerPath {
	if c.source == nil {
		return llbop.ScratchPath(path)
	}
	return llbop.OtherPath(c.source.Output(), path)
}

func (c *OutputConfig) User() string             { return c.user }
func (c *OutputConfig) Workdir() string           { return c.workdir }
func (c *OutputConfig) Entrypoint() []string      { return c.entrypoint }
func (c *OutputConfig) Cmd() []string             { return c.cmd }
func (c *OutputConfig) Env() map[string]string    { return c.mergedEnv }
func (c *OutputConfig) Labels() map[string]string { return c.overrides.Labels }
func (c *OutputConfig) Volumes() []string         { return c.overrides.Volumes }
func (c *OutputConfig) ExposedPorts() []oci.ExposedPort { return c.overrides.Expose }
func (c *OutputConfig) StopSignal() oci.Signal    { return c.stopSignal }

func (c *OutputConfig) PreInstallCommands() []CustomCommand  { return c.overrides.PreInstallCommands }
func (c *OutputConfig) PostInstallCommands() []CustomCommand { return c.overrides.PostInstallCommands }
func (c *OutputConfig) CopyCommands() []StaticAssetDefinition { return c.overrides.Copy }

// ImageConfig builds the final OCI image config for the output image,
// overrides winning over the pulled base image's own values, folding in
// the merged environment as a whole.
func (c *OutputConfig) ImageConfig() *oci.ImageConfig {
	env := make(map[string]string, len(c.mergedEnv))
	for k, v := range c.mergedEnv {
		env[k] = v
	}

	return &oci.ImageConfig{
		User:         c.user,
		Env:          env,
		Entrypoint:   c.entrypoint,
		Cmd:          c.cmd,
		WorkingDir:   c.workdir,
		Labels:       c.overrides.Labels,
		Volumes:      c.overrides.Volumes,
		ExposedPorts: c.overrides.Expose,
		StopSignal:   string(c.stopSignal),
	}
}

// PopulateEnv applies this output's user and environment to an exec
// command, matching the original's populate_env for the output image
// (no CARGO_HOME/target-dir caches — those are builder-only concerns).
func (c *OutputConfig) PopulateEnv(cmd *llbop.Command) *llbop.Command {
	if c.user != "" {
		cmd = cmd.User(c.user)
	}
	return cmd.EnvIter(c.mergedEnv)
}
