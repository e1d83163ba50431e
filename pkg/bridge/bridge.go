// Package bridge wraps the gateway-client RPCs the frontend exchanges
// with BuildKit over the gRPC-over-stdio connection: solving a graph,
// reading a file back out of a solved result, and resolving the image
// config of a source image. Exactly one Return call closes the
// session, and only one bridge call may be in flight at a time
// (BuildKit serializes the stdio pipe, single-writer).
package bridge

import (
	"context"
	"encoding/json"

	"github.com/containerd/containerd/platforms"
	"github.com/google/uuid"
	gwclient "github.com/moby/buildkit/frontend/gateway/client"
	"github.com/moby/buildkit/solver/pb"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/internal/wharflog"
	"github.com/shmocker/wharf/pkg/oci"
)

var log = wharflog.For("bridge")

// Output is an opaque reference to a solved result, handed back to
// BuildKit by Return, or consumed by ReadFile to inspect build output.
type Output struct {
	ref gwclient.Reference
}

// Bridge is a thin, typed wrapper over the raw gateway client. It never
// constructs its own connection: the caller (cmd/wharf-frontend) obtains
// a gwclient.Client from grpcclient.RunFromEnvironment and passes it in.
// Every round trip is logged with the session's correlation id, so a
// sequence of Solve/ReadFile/ResolveImageConfig calls from one build can
// be picked out of interleaved frontend logs.
type Bridge struct {
	client    gwclient.Client
	sessionID string
}

func New(client gwclient.Client) *Bridge {
	return &Bridge{client: client, sessionID: uuid.NewString()}
}

func (b *Bridge) log() *logrus.Entry {
	return log.WithField("session_id", b.sessionID)
}

// Solve sends a Definition to BuildKit and returns a reference to the
// solved result.
func (b *Bridge) Solve(ctx context.Context, def *pb.Definition) (*Output, error) {
	b.log().Debug("requesting to solve a graph")

	res, err := b.client.Solve(ctx, gwclient.SolveRequest{
		Definition: def,
	})
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to solve the graph")
	}

	ref, err := res.SingleRef()
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to extract solve result")
	}

	return &Output{ref: ref}, nil
}

// SolveWithCache is Solve plus a set of cache-import entries (the cache
// sources passed in through the frontend's cache-imports/cache-from
// options), matching `solve_with_cache`'s extra cache_entries argument.
func (b *Bridge) SolveWithCache(ctx context.Context, def *pb.Definition, cacheImports []gwclient.CacheOptionsEntry) (*Output, error) {
	b.log().Debug("requesting to solve a graph with cache imports")

	res, err := b.client.Solve(ctx, gwclient.SolveRequest{
		Definition:   def,
		CacheImports: cacheImports,
	})
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to solve the graph with cache")
	}

	ref, err := res.SingleRef()
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to extract solve result")
	}

	return &Output{ref: ref}, nil
}

// ReadFile reads a file out of a previously solved output, used to
// inspect generated Cargo.lock/build-plan content during graph
// construction.
func (b *Bridge) ReadFile(ctx context.Context, output *Output, path string) ([]byte, error) {
	b.log().Debugf("requesting file contents: %s", path)

	data, err := output.ref.ReadFile(ctx, gwclient.ReadRequest{Filename: path})
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to read file")
	}

	return data, nil
}

// ResolveImageConfig resolves the OCI image config of a source image
// reference, used to seed the builder/output image metadata (CARGO_HOME
// guessing, inherited Env/Entrypoint) before the base layer is even
// pulled. A manifest-listed image resolves against the host's default
// platform, so the same builder/output reference always yields the same
// config regardless of which architecture the daemon happens to run on.
func (b *Bridge) ResolveImageConfig(ctx context.Context, ref string, logName string) (digest string, spec *oci.ImageSpecification, err error) {
	b.log().Debugf("resolving image config for %s", ref)

	platform := platforms.DefaultSpec()
	opts := gwclient.ResolveImageConfigOpt{Platform: &platform}
	if logName != "" {
		opts.LogName = logName
	}

	_, resolvedDigest, configBytes, err := b.client.ResolveImageConfig(ctx, ref, opts)
	if err != nil {
		return "", nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to resolve image config")
	}

	var parsed oci.ImageSpecification
	if err := json.Unmarshal(configBytes, &parsed); err != nil {
		return "", nil, wharferrors.Wrap(wharferrors.BridgeError, err, "unable to parse resolved image config")
	}

	return resolvedDigest.String(), &parsed, nil
}

// BuildResult assembles the *gwclient.Result a BuildFunc hands back to
// grpcclient.RunFromEnvironment: a ref plus, if present, an image config
// attached under the `containerimage.config` result metadata key. The
// harness performs the single Return RPC itself once the BuildFunc
// returns, which is what the original's explicit finish_with_success
// does by hand over its own hand-rolled tower-grpc connection.
func BuildResult(output *Output, spec *oci.ImageSpecification) (*gwclient.Result, error) {
	res := gwclient.NewResult()
	res.SetRef(output.ref)

	if spec != nil {
		encoded, err := json.Marshal(spec)
		if err != nil {
			return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to encode image config")
		}
		res.AddMeta("containerimage.config", encoded)
	}

	return res, nil
}

// GRPCCode maps a classified error to the gRPC status code the harness
// reports back through the Return RPC's error field, matching the
// original's kind-to-code table.
func GRPCCode(cause error) codes.Code {
	return wharferrors.KindOf(cause).Code()
}
