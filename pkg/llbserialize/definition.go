// Package llbserialize is the content-addressed serializer (C2): it turns
// a llbop.Terminal into the flat wire-level pb.Definition BuildKit expects,
// and the raw bytes form used for debug-mode LLB dumps.
package llbserialize

import (
	"github.com/moby/buildkit/solver/pb"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/llbop"
)

// Build walks terminal and produces its Definition. Calling this twice on
// the same terminal must yield byte-identical output (testable property 1
// in the design notes) because serialization is a pure function of the
// operation graph.
func Build(terminal *llbop.Terminal) (*pb.Definition, error) {
	def, err := terminal.Definition()
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to serialize LLB graph")
	}

	return def, nil
}

// Marshal encodes a Definition to its wire bytes, used for the `llb` debug
// artifact.
func Marshal(def *pb.Definition) ([]byte, error) {
	encoded, err := def.Marshal()
	if err != nil {
		return nil, wharferrors.Wrap(wharferrors.SerializationError, err, "unable to marshal LLB definition")
	}

	return encoded, nil
}
