package buildplan

import (
	"github.com/moby/buildkit/solver/pb"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/llbserialize"
)

// definitionFor serializes a single-output graph into a Definition for
// the bridge's Solve call.
func definitionFor(output llbop.OperationOutput) (*pb.Definition, error) {
	def, err := llbserialize.Build(llbop.With(output))
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to serialize command graph")
	}

	return def, nil
}
