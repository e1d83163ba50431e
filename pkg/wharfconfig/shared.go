package wharfconfig

import (
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/shmocker/wharf/internal/wharferrors"
)

// validateImageRef rejects a malformed builder/output image reference
// before it ever reaches an LLB image source, the same early check the
// original's cosign signing path applies to a reference before acting
// on it.
func validateImageRef(ref string) error {
	if _, err := name.ParseReference(ref); err != nil {
		return wharferrors.Wrapf(wharferrors.ConfigError, err, "invalid image reference %q", ref)
	}
	return nil
}

// Well-known paths and tool locations shared across config resolution,
// build-graph construction, and the final LLB query, mirroring the
// original's shared.rs constants.
const (
	ContextPath    = "/context"
	DockerfilePath = "/dockerfile"
	TargetPath     = "/target"
)

// ToolsImageRef is the image carrying the metadata collector,
// build-script capture/apply shims, build-plan emitter, and test
// runner baked in at well-known paths. It is a fixed constant of this
// package, the counterpart of the original's compile-time
// `CONTAINER_TOOLS_REF` env var.
const ToolsImageRef = "ghcr.io/wharf-rs/tools:latest"

// Paths of the helper binaries baked into the tools image: a metadata
// collector, build-script capture/apply shims, the build-plan emitter,
// and the test runner. These are invoked as Exec commands against the
// tools image mounted read-only alongside the builder image.
const (
	ToolMetadataCollector  = "/usr/local/bin/cargo-metadata-collector"
	ToolBuildScriptCapture = "/usr/local/bin/cargo-buildscript-capture"
	ToolBuildScriptApply   = "/usr/local/bin/cargo-buildscript-apply"
	ToolBuildPlan          = "/usr/local/bin/cargo-build-plan"
	ToolTestRunner         = "/usr/local/bin/cargo-test-runner"
	ToolSources            = "/usr/local/bin/cargo-sources-collector"
)
