package wharfconfig

import (
	"context"
	"fmt"
	"path"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/internal/wharflog"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/llbop"
)

var log = wharflog.For("wharfconfig")

const cargoTargetDirEnv = "CARGO_TARGET_DIR"

// BuilderConfig is the builder image resolved against its live OCI
// config: overrides from the manifest win, the pulled image's own
// Env/User fill any gap, and CARGO_HOME is either taken from the merged
// environment or guessed from the effective user.
type BuilderConfig struct {
	source *llbop.Source

	overrides RawBuilderConfig
	mergedEnv map[string]string
	user      string
	cargoHome string
}

// AnalyseBuilder resolves raw against the builder image's live config.
func AnalyseBuilder(ctx context.Context, br *bridge.Bridge, raw RawBuilderConfig) (*BuilderConfig, error) {
	if err := validateImageRef(raw.Image); err != nil {
		return nil, err
	}

	source := llbop.Image(raw.Image).WithResolveMode(llbop.ResolveModePreferLocal)

	digest, spec, err := br.ResolveImageConfig(ctx, raw.Image, "Resolving builder image")
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to resolve image config")
	}

	if digest != "" {
		source = source.WithDigest(digest)
	}

	var baseEnv map[string]string
	var baseUser string
	if spec.Config != nil {
		baseEnv = spec.Config.Env
		baseUser = spec.Config.User
	}

	merged := mergeEnv(baseEnv, raw.Env)

	user := raw.User
	if user == "" {
		user = baseUser
	}

	cargoHome := merged["CARGO_HOME"]
	if cargoHome == "" {
		guessed, ok := guessCargoHome(user)
		if !ok {
			return nil, wharferrors.New(wharferrors.ConfigError, "unable to find or guess CARGO_HOME env variable")
		}
		cargoHome = guessed
	}

	return &BuilderConfig{
		source:    source,
		overrides: raw,
		mergedEnv: merged,
		user:      user,
		cargoHome: cargoHome,
	}, nil
}

func guessCargoHome(user string) (string, bool) {
	switch user {
	case "":
		return "", false
	case "root":
		return "/root/.cargo", true
	default:
		return fmt.Sprintf("/home/%s/.cargo", user), true
	}
}

// NewBuilderConfigForTest builds a BuilderConfig directly from already-
// resolved fields, bypassing AnalyseBuilder's bridge round trip —
// exported so other packages' tests can synthesize one without a live
// gateway client, mirroring the original's test-only `mocked_new`.
func NewBuilderConfigForTest(source *llbop.Source, cargoHome string, env map[string]string, user string) *BuilderConfig {
	return &BuilderConfig{
		source:    source,
		mergedEnv: env,
		user:      user,
		cargoHome: cargoHome,
	}
}

func (c *BuilderConfig) Source() *llbop.Source { return c.source }
func (c *BuilderConfig) CargoHome() string      { return c.cargoHome }
func (c *BuilderConfig) User() string           { return c.user }
func (c *BuilderConfig) Target() string         { return c.overrides.Target }
func (c *BuilderConfig) Env() map[string]string { return c.mergedEnv }
func (c *BuilderConfig) SetupCommands() []CustomCommand { return c.overrides.SetupCommands }

// PopulateEnv applies this builder's user, environment, CARGO_HOME, and
// shared registry/git caches to an exec command, matching the original's
// populate_env chaining.
func (c *BuilderConfig) PopulateEnv(cmd *llbop.Command) *llbop.Command {
	cmd = cmd.Env(cargoTargetDirEnv, TargetPath)

	if c.user != "" {
		cmd = cmd.User(c.user)
	}

	cmd = cmd.EnvIter(c.mergedEnv)

	cmd = cmd.Env("CARGO_HOME", c.cargoHome)
	cmd = cmd.Mount(llbop.SharedCacheMount(path.Join(c.cargoHome, "git")))
	cmd = cmd.Mount(llbop.SharedCacheMount(path.Join(c.cargoHome, "registry")))

	return cmd
}
