package llbop

import (
	"github.com/moby/buildkit/solver/pb"
)

// Terminal is the single-input operation encoding the complete graph when
// serialized; it has no metadata of its own and no displayable output.
type Terminal struct {
	id    OperationID
	input OperationOutput
}

// With builds a Terminal rooted at input.
func With(input OperationOutput) *Terminal {
	return &Terminal{id: NewOperationID(), input: input}
}

func (t *Terminal) ID() OperationID { return t.id }
func (t *Terminal) String() string  { return "terminal" }

func (t *Terminal) SerializeHead(cx *Context) (*Node, error) {
	producerOut, err := Serialize(cx, t.input.Op)
	if err != nil {
		return nil, err
	}

	op := &pb.Op{
		Inputs: []*pb.Input{{
			Digest: producerOut.Head.Digest,
			Index:  pb.OutputIndex(t.input.Index),
		}},
	}

	encoded, err := op.Marshal()
	if err != nil {
		return nil, err
	}

	return NewNode(encoded, OpMetadata{}), nil
}

func (t *Terminal) SerializeTail(cx *Context) ([]*Node, error) {
	out, err := Serialize(cx, t.input.Op)
	if err != nil {
		return nil, err
	}

	return out.All(), nil
}

// Definition fully serializes the terminal and flattens the result into a
// pb.Definition: every unique node appended once, keyed by digest, in
// deterministic post-order of first visit (C2).
func (t *Terminal) Definition() (*pb.Definition, error) {
	cx := NewContext()

	out, err := Serialize(cx, t)
	if err != nil {
		return nil, err
	}

	def := &pb.Definition{
		Metadata: make(map[digestKey]pb.OpMetadata),
	}

	seen := make(map[digestKey]bool)

	for _, node := range out.All() {
		key := digestKey(node.Digest.String())
		if seen[key] {
			continue
		}
		seen[key] = true

		def.Def = append(def.Def, node.Bytes)
		def.Metadata[key] = pb.OpMetadata{
			Description: node.Metadata.Description,
			Caps:        node.Metadata.Caps,
			IgnoreCache: node.Metadata.IgnoreCache,
		}
	}

	return def, nil
}

// digestKey is the string form of a digest, matching pb.Definition's
// map[string]OpMetadata wire representation.
type digestKey = string
