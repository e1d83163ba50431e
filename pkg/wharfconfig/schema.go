// Package wharfconfig decodes the `package.metadata.wharf` table a
// `cargo metadata` invocation already rendered to JSON for every
// workspace member, and resolves it against the builder/output base
// images (C4).
package wharfconfig

import (
	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/oci"
)

// RawMetadata is one workspace member's decoded
// `package.metadata.wharf` table. Every field is optional because only
// one member of the workspace is expected to carry builder/output, and
// because binaries may be spread across several members.
type RawMetadata struct {
	Builder *RawBuilderConfig  `json:"builder"`
	Output  *RawOutputConfig   `json:"output"`
	Binary  []BinaryDefinition `json:"binary"`
}

// RawBuilderConfig is the as-written `wharf.builder` table.
type RawBuilderConfig struct {
	Image         string            `json:"image"`
	User          string            `json:"user,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Target        string            `json:"target,omitempty"`
	SetupCommands []CustomCommand   `json:"setup-commands,omitempty"`
}

// RawOutputConfig is the as-written `wharf.output` table.
type RawOutputConfig struct {
	Image               string                  `json:"image"`
	User                string                  `json:"user,omitempty"`
	Workdir             string                  `json:"workdir,omitempty"`
	Entrypoint          []string                `json:"entrypoint,omitempty"`
	Args                []string                `json:"args,omitempty"`
	Env                 map[string]string       `json:"env,omitempty"`
	Expose              []oci.ExposedPort       `json:"expose,omitempty"`
	Volumes             []string                `json:"volumes,omitempty"`
	Labels              map[string]string       `json:"labels,omitempty"`
	StopSignal          oci.Signal              `json:"stop-signal,omitempty"`
	PreInstallCommands  []CustomCommand         `json:"pre-install-commands,omitempty"`
	PostInstallCommands []CustomCommand         `json:"post-install-commands,omitempty"`
	Copy                []StaticAssetDefinition `json:"copy,omitempty"`
}

// BinaryDefinition names a workspace binary target and where it lands
// in the output image.
type BinaryDefinition struct {
	Name        string `json:"name"`
	Destination string `json:"destination"`
}

// CustomCommand is a single arbitrary exec step chained against a base
// image before the compile/copy steps, e.g. `apt-get install -y libpq`.
type CustomCommand struct {
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

// StaticAssetDefinition copies an extra file or directory from the
// build context into the output image, beyond the binaries the base
// schema already describes.
type StaticAssetDefinition struct {
	Source      string `json:"src"`
	Destination string `json:"dest"`
}

// ConfigBase is the merged, validated view across every workspace
// member's metadata: exactly one builder section, exactly one output
// section, and the union of every binary declaration.
type ConfigBase struct {
	Builder  RawBuilderConfig
	Output   RawOutputConfig
	Binaries []BinaryDefinition
}

// ExtractConfigBase folds each workspace member's RawMetadata into a
// single ConfigBase, failing if the builder or output section is
// duplicated or missing entirely.
func ExtractConfigBase(members []RawMetadata) (*ConfigBase, error) {
	var builder *RawBuilderConfig
	var output *RawOutputConfig
	var binaries []BinaryDefinition

	for _, member := range members {
		binaries = append(binaries, member.Binary...)

		if member.Builder != nil {
			if builder != nil {
				return nil, wharferrors.New(wharferrors.ConfigError, "found duplicated 'wharf.builder' section")
			}
			builder = member.Builder
		}

		if member.Output != nil {
			if output != nil {
				return nil, wharferrors.New(wharferrors.ConfigError, "found duplicated 'wharf.output' section")
			}
			output = member.Output
		}
	}

	if builder == nil {
		return nil, wharferrors.New(wharferrors.ConfigError, "missing 'wharf.builder' section")
	}
	if output == nil {
		return nil, wharferrors.New(wharferrors.ConfigError, "missing 'wharf.output' section")
	}

	return &ConfigBase{Builder: *builder, Output: *output, Binaries: binaries}, nil
}

// mergeEnv overlays overrides on top of a base environment map, without
// mutating either input.
func mergeEnv(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
