package llbop

import (
	"github.com/moby/buildkit/solver/pb"
)

// LayerPathKind discriminates where a file action's source or destination
// layer comes from.
type LayerPathKind int

const (
	// LayerScratch is an empty layer local to this action.
	LayerScratch LayerPathKind = iota
	// LayerOwn references an earlier action's output within the same
	// Sequence, by that action's own output index.
	LayerOwn
	// LayerOther references another operation's output entirely.
	LayerOther
)

// LayerPath names a path within one of the three layer sources a file
// action can read or write.
type LayerPath struct {
	Kind  LayerPathKind
	Own   int64
	Other OperationOutput
	Path  string
}

// ScratchPath builds a LayerPath rooted at an empty layer.
func ScratchPath(path string) LayerPath { return LayerPath{Kind: LayerScratch, Path: path} }

// OwnPath builds a LayerPath rooted at this Sequence's own prior output
// ownIndex.
func OwnPath(ownIndex int64, path string) LayerPath {
	return LayerPath{Kind: LayerOwn, Own: ownIndex, Path: path}
}

// OtherPath builds a LayerPath rooted at another operation's output.
func OtherPath(source OperationOutput, path string) LayerPath {
	return LayerPath{Kind: LayerOther, Other: source, Path: path}
}

// fileAction is one entry of a Sequence: Copy, Mkdir or Mkfile.
type fileAction interface {
	inputs(cx *Context) ([]*pb.Input, []*Node, error)
	build(inputsCount, inputsOffset int64) *pb.FileAction
	outputIndex() int64
}

// Sequence is the umbrella File operation: an ordered list of actions that
// together produce one or more output layers, matching FileSystem in the
// source.
type Sequence struct {
	id     OperationID
	inner  []fileAction
	lastOp int64 // most recently appended action's own output index, -1 if none

	customName  string
	ignoreCache bool

	cachedTail []*Node
}

// NewSequence starts an empty Sequence.
func NewSequence() *Sequence {
	return &Sequence{id: NewOperationID(), lastOp: -1}
}

// Append adds one action and returns the Sequence for chaining.
func (s *Sequence) Append(action fileAction) *Sequence {
	s.inner = append(s.inner, action)
	if idx := action.outputIndex(); idx >= 0 {
		s.lastOp = idx
	}
	return s
}

// LastOutputIndex returns the most recently appended action's own output
// index, or -1 if none has produced one yet.
func (s *Sequence) LastOutputIndex() int64 {
	return s.lastOp
}

// CustomName sets the display name.
func (s *Sequence) CustomName(name string) *Sequence {
	s.customName = name
	return s
}

// IgnoreCache marks this sequence to bypass the daemon cache.
func (s *Sequence) IgnoreCache(ignore bool) *Sequence {
	s.ignoreCache = ignore
	return s
}

// Output returns a handle to one of this sequence's numbered outputs.
func (s *Sequence) Output(index OutputIndex) OperationOutput {
	return Out(s, index)
}

func (s *Sequence) ID() OperationID { return s.id }

func (s *Sequence) String() string {
	if s.customName != "" {
		return s.customName
	}
	return "file sequence"
}

func (s *Sequence) SerializeHead(cx *Context) (*Node, error) {
	var inputs []*pb.Input
	var tailNodes []*Node
	offsets := make([]int64, len(s.inner))

	for i, action := range s.inner {
		actionInputs, tail, err := action.inputs(cx)
		if err != nil {
			return nil, err
		}

		offsets[i] = int64(len(inputs))
		inputs = append(inputs, actionInputs...)
		tailNodes = append(tailNodes, tail...)
	}

	s.cachedTail = tailNodes

	actions := make([]*pb.FileAction, len(s.inner))
	for i, action := range s.inner {
		actions[i] = action.build(int64(len(inputs)), offsets[i])
	}

	op := &pb.Op{
		Inputs: inputs,
		Op: &pb.Op_File{
			File: &pb.FileOp{Actions: actions},
		},
	}

	encoded, err := op.Marshal()
	if err != nil {
		return nil, err
	}

	return NewNode(encoded, OpMetadata{
		Description: map[string]string{"llb.customname": s.customName},
		Caps:        map[string]bool{"file.base": true},
		IgnoreCache: s.ignoreCache,
	}), nil
}

func (s *Sequence) SerializeTail(cx *Context) ([]*Node, error) {
	return s.cachedTail, nil
}

// layerPathInput resolves a LayerPath into a (pb.Input|nil, tail, error)
// triple. A LayerOwn path contributes no new input (it's resolved
// relative to the sequence's own prior outputs at build time via
// inputsCount+own); a scratch path contributes no input either.
func layerPathInput(cx *Context, p LayerPath) (*pb.Input, []*Node, error) {
	switch p.Kind {
	case LayerScratch, LayerOwn:
		return nil, nil, nil
	case LayerOther:
		out, err := Serialize(cx, p.Other.Op)
		if err != nil {
			return nil, nil, err
		}

		return &pb.Input{Digest: out.Head.Digest, Index: pb.OutputIndex(p.Other.Index)}, out.All(), nil
	default:
		return nil, nil, nil
	}
}
