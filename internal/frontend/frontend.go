package frontend

import (
	"context"

	gwclient "github.com/moby/buildkit/frontend/gateway/client"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/internal/wharflog"
	"github.com/shmocker/wharf/pkg/bridge"
	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/llbquery"
)

var log = wharflog.For("frontend")

// Build is the BuildFunc the gRPC-over-stdio harness invokes: analyse
// the wharf metadata, evaluate the Cargo build plan, fold it into a
// build graph, compose the LLB query, and either dump the requested
// debug artifacts or solve the real build, matching the original's
// `CargoFrontend::run`.
func Build(ctx context.Context, client gwclient.Client) (*gwclient.Result, error) {
	opts, err := ParseOptions(client.BuildOpts().Opts)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to parse frontend options")
	}

	br := bridge.New(client)
	debug := NewDebugOperation()

	log.Debug("analysing configuration")
	config, err := buildplan.Analyse(ctx, br, opts.BuildPlanOptions())
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.ConfigError, err, "unable to analyse config")
	}

	if err := debug.MaybeConfig(opts, config); err != nil {
		return nil, err
	}

	log.Debug("evaluating the Cargo build plan")
	plan, err := buildplan.Evaluate(ctx, br, config)
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.PlanError, err, "unable to evaluate the Cargo build plan")
	}

	if err := debug.MaybeBuildPlan(opts, plan); err != nil {
		return nil, err
	}

	graph, err := buildgraph.NewFromPlan(plan)
	if err != nil {
		return nil, err
	}

	if err := debug.MaybeBuildGraph(opts, graph); err != nil {
		return nil, err
	}

	query := llbquery.New(graph, config)

	if len(opts.Debug) > 0 {
		def, err := query.Definition()
		if err != nil {
			return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to build debug definition")
		}
		if err := debug.MaybeLLB(opts, def); err != nil {
			return nil, err
		}
	}

	if debug.HasAny() {
		def, err := debug.Terminal().Definition()
		if err != nil {
			return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to serialize debug output")
		}

		out, err := br.Solve(ctx, def)
		if err != nil {
			return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to write debug output")
		}
		return bridge.BuildResult(out, nil)
	}

	spec, err := query.ImageSpec()
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to build image spec")
	}

	log.Debug("solving the composed build")
	out, err := query.Solve(ctx, br, opts.CacheEntries())
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to build the crate")
	}

	return bridge.BuildResult(out, spec)
}
