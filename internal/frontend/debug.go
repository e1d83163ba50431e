package frontend

import (
	"encoding/json"

	"github.com/moby/buildkit/solver/pb"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/llbserialize"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// debugConfigView is the pretty-JSON shape the config debug artifact
// dumps — buildplan.Config's Builder/Output fields are otherwise opaque
// (unexported, resolved-OCI-config state), so this reassembles a
// readable view from their exported getters.
type debugConfigView struct {
	Builder struct {
		CargoHome     string                      `json:"cargo_home"`
		User          string                      `json:"user,omitempty"`
		Target        string                      `json:"target,omitempty"`
		Env           map[string]string           `json:"env,omitempty"`
		SetupCommands []wharfconfig.CustomCommand `json:"setup_commands,omitempty"`
	} `json:"builder"`

	Output struct {
		User                string                      `json:"user,omitempty"`
		Workdir             string                      `json:"workdir,omitempty"`
		Entrypoint          []string                    `json:"entrypoint,omitempty"`
		Cmd                 []string                    `json:"cmd,omitempty"`
		Env                 map[string]string           `json:"env,omitempty"`
		Labels              map[string]string           `json:"labels,omitempty"`
		Volumes             []string                    `json:"volumes,omitempty"`
		IsScratch           bool                        `json:"is_scratch"`
		PreInstallCommands  []wharfconfig.CustomCommand `json:"pre_install_commands,omitempty"`
		PostInstallCommands []wharfconfig.CustomCommand `json:"post_install_commands,omitempty"`
	} `json:"output"`

	Binaries        []string `json:"binaries,omitempty"`
	Profile         string   `json:"profile"`
	DefaultFeatures bool     `json:"default_features"`
	EnabledFeatures []string `json:"enabled_features,omitempty"`
}

func newDebugConfigView(cfg *buildplan.Config) debugConfigView {
	var v debugConfigView

	v.Builder.CargoHome = cfg.Builder.CargoHome()
	v.Builder.User = cfg.Builder.User()
	v.Builder.Target = cfg.Builder.Target()
	v.Builder.Env = cfg.Builder.Env()
	v.Builder.SetupCommands = cfg.Builder.SetupCommands()

	v.Output.User = cfg.Output.User()
	v.Output.Workdir = cfg.Output.Workdir()
	v.Output.Entrypoint = cfg.Output.Entrypoint()
	v.Output.Cmd = cfg.Output.Cmd()
	v.Output.Env = cfg.Output.Env()
	v.Output.Labels = cfg.Output.Labels()
	v.Output.Volumes = cfg.Output.Volumes()
	v.Output.IsScratch = cfg.Output.IsScratch()
	v.Output.PreInstallCommands = cfg.Output.PreInstallCommands()
	v.Output.PostInstallCommands = cfg.Output.PostInstallCommands()

	for _, b := range cfg.Binaries {
		v.Binaries = append(v.Binaries, b.Name+" -> "+b.Destination)
	}
	v.Profile = profileName(cfg.Profile)
	v.DefaultFeatures = cfg.DefaultFeatures
	v.EnabledFeatures = cfg.EnabledFeatures

	return v
}

func profileName(p buildplan.Profile) string {
	switch p {
	case buildplan.ProfileReleaseBinaries:
		return "release-binaries"
	case buildplan.ProfileDebugBinaries:
		return "debug-binaries"
	case buildplan.ProfileReleaseTests:
		return "release-tests"
	case buildplan.ProfileDebugTests:
		return "debug-tests"
	default:
		return "unknown"
	}
}

// DebugOperation accumulates debug artifacts as a chain of Mkfile
// actions over a scratch layer, the way the original's debug.rs builds
// its sequence one append at a time.
type DebugOperation struct {
	seq     *llbop.Sequence
	nextIdx int64
	lastIdx int64
	hasAny  bool
}

// NewDebugOperation starts an empty debug-dump sequence.
func NewDebugOperation() *DebugOperation {
	return &DebugOperation{seq: llbop.NewSequence().CustomName("Writing the debug output")}
}

func (d *DebugOperation) append(name string, data []byte) {
	var layerPath llbop.LayerPath
	if !d.hasAny {
		layerPath = llbop.ScratchPath(name)
	} else {
		layerPath = llbop.OwnPath(d.lastIdx, name)
	}

	idx := d.nextIdx
	d.seq.Append(llbop.NewMkfile(llbop.OutputIndex(idx), layerPath).Data(data))

	d.lastIdx = idx
	d.nextIdx++
	d.hasAny = true
}

// MaybeConfig appends the config.json artifact when requested.
func (d *DebugOperation) MaybeConfig(opts *Options, cfg *buildplan.Config) error {
	if !opts.HasDebug(DebugConfig) {
		return nil
	}

	data, err := json.MarshalIndent(newDebugConfigView(cfg), "", "  ")
	if err != nil {
		return wharferrors.Wrap(wharferrors.SerializationError, err, "unable to encode debug config")
	}

	d.append("config.json", data)
	return nil
}

// MaybeBuildPlan appends the build-plan.json artifact when requested.
func (d *DebugOperation) MaybeBuildPlan(opts *Options, plan *buildplan.RawBuildPlan) error {
	if !opts.HasDebug(DebugBuildPlan) {
		return nil
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return wharferrors.Wrap(wharferrors.SerializationError, err, "unable to encode debug build plan")
	}

	d.append("build-plan.json", data)
	return nil
}

// MaybeBuildGraph appends the build-graph.json artifact when requested.
func (d *DebugOperation) MaybeBuildGraph(opts *Options, graph *buildgraph.BuildGraph) error {
	if !opts.HasDebug(DebugBuildGraph) {
		return nil
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return wharferrors.Wrap(wharferrors.SerializationError, err, "unable to encode debug build graph")
	}

	d.append("build-graph.json", data)
	return nil
}

// MaybeLLB appends the raw marshaled llb.pb artifact when requested.
func (d *DebugOperation) MaybeLLB(opts *Options, def *pb.Definition) error {
	if !opts.HasDebug(DebugLLB) {
		return nil
	}

	data, err := llbserialize.Marshal(def)
	if err != nil {
		return err
	}

	d.append("llb.pb", data)
	return nil
}

// HasAny reports whether any artifact was appended.
func (d *DebugOperation) HasAny() bool { return d.hasAny }

// Terminal returns the terminal over the last appended artifact's
// output, ready to solve in place of the real build.
func (d *DebugOperation) Terminal() *llbop.Terminal {
	return llbop.With(d.seq.Output(llbop.OutputIndex(d.lastIdx)))
}
