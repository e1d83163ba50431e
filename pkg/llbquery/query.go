// Package llbquery composes the fully merged build graph (C6) and its
// resolved configuration (C4/C5) into the final LLB operation graph
// (C2): one exec per compile/build-script/test node plus a terminal
// assembling the output image, ready for the bridge to solve.
package llbquery

import (
	"context"

	gwclient "github.com/moby/buildkit/frontend/gateway/client"
	"github.com/moby/buildkit/solver/pb"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/llbserialize"
	"github.com/shmocker/wharf/pkg/oci"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// Query is the single entry point C8's orchestration shell uses once it
// has a merged graph and a resolved config: it holds the builder/output
// images' own setup/pre-install command chains (computed once) and
// exposes Definition/Solve/ImageSpec.
type Query struct {
	graph  *buildgraph.BuildGraph
	config *buildplan.Config

	builderSource *llbop.OperationOutput
	outputSource  *llbop.OperationOutput
	contextSource llbop.OperationOutput
}

// New builds a Query over graph/config.
func New(graph *buildgraph.BuildGraph, config *buildplan.Config) *Query {
	q := &Query{graph: graph, config: config}

	q.builderSource = sourceLLB(config.Builder, config.Builder.SetupCommands())
	q.outputSource = sourceLLB(config.Output, config.Output.PreInstallCommands())

	q.contextSource = llbop.Local("context").
		CustomName("Using build context").
		AddExcludePattern("**/target").
		Output()

	return q
}

// Definition serializes the composed terminal into the wire-level
// Definition the bridge solves.
func (q *Query) Definition() (*pb.Definition, error) {
	terminal, err := q.Terminal()
	if err != nil {
		return nil, err
	}

	return llbserialize.Build(terminal)
}

// Solve builds and solves the composed graph, importing cache from
// cacheImports when the caller configured any.
func (q *Query) Solve(ctx context.Context, br *bridge.Bridge, cacheImports []gwclient.CacheOptionsEntry) (*bridge.Output, error) {
	def, err := q.Definition()
	if err != nil {
		return nil, err
	}

	if len(cacheImports) == 0 {
		return br.Solve(ctx, def)
	}

	return br.SolveWithCache(ctx, def, cacheImports)
}

// ImageSpec builds the OCI image config attached to the solved result.
// Binaries profiles carry the output image's own config verbatim; test
// profiles synthesize a minimal entrypoint invoking the test runner
// against every collected test binary, carrying only the output image's
// env and user — cmd, working directory, labels, volumes, exposed
// ports and stop signal don't apply to the one-shot test-runner image.
func (q *Query) ImageSpec() (*oci.ImageSpecification, error) {
	if q.config.Profile.IsTests() {
		entrypoint := []string{wharfconfig.ToolTestRunner}
		for _, o := range q.outputs() {
			entrypoint = append(entrypoint, o.Path)
		}

		return &oci.ImageSpecification{
			Config: &oci.ImageConfig{
				User:       q.config.Output.User(),
				Env:        q.config.Output.Env(),
				Entrypoint: entrypoint,
			},
		}, nil
	}

	return &oci.ImageSpecification{Config: q.config.Output.ImageConfig()}, nil
}

func errNoOutputs() error {
	return wharferrors.New(wharferrors.NoOutputs, "nothing to do - no binaries were found")
}
