package llbop

import (
	"github.com/moby/buildkit/solver/pb"
)

// resolveRef turns a LayerPath into the (input-index, path) pair a
// pb.FileAction references, where inputsCount/inputsOffset let a LayerOwn
// reference fold back into this same Sequence's earlier outputs, per the
// source's "inputs_count + own_index" offset scheme.
func resolveRef(p LayerPath, hasInput bool, myOffset int64, inputsCount int64) (int64, string) {
	switch p.Kind {
	case LayerScratch:
		return -1, p.Path
	case LayerOwn:
		return inputsCount + p.Own, p.Path
	case LayerOther:
		if hasInput {
			return myOffset, p.Path
		}
		return -1, p.Path
	default:
		return -1, p.Path
	}
}

// Copy copies a file or directory tree from one layer to another.
type Copy struct {
	from, to     LayerPath
	output       OutputIndex
	createPath   bool
	followSymlnk bool
}

// NewCopy builds a Copy action writing to output, copying from → to.
func NewCopy(output OutputIndex, from, to LayerPath) *Copy {
	return &Copy{from: from, to: to, output: output, createPath: true, followSymlnk: true}
}

// CreatePath toggles whether missing destination directories are created.
func (c *Copy) CreatePath(v bool) *Copy { c.createPath = v; return c }

func (c *Copy) inputs(cx *Context) ([]*pb.Input, []*Node, error) {
	var inputs []*pb.Input
	var tail []*Node

	if fromInput, fromTail, err := layerPathInput(cx, c.from); err != nil {
		return nil, nil, err
	} else if fromInput != nil {
		inputs = append(inputs, fromInput)
		tail = append(tail, fromTail...)
	}

	if toInput, toTail, err := layerPathInput(cx, c.to); err != nil {
		return nil, nil, err
	} else if toInput != nil {
		inputs = append(inputs, toInput)
		tail = append(tail, toTail...)
	}

	return inputs, tail, nil
}

func (c *Copy) build(inputsCount, inputsOffset int64) *pb.FileAction {
	fromHasInput := c.from.Kind == LayerOther
	toHasInput := c.to.Kind == LayerOther

	fromOffset := inputsOffset
	toOffset := inputsOffset
	if fromHasInput {
		toOffset++
	}

	srcInput, srcPath := resolveRef(c.from, fromHasInput, fromOffset, inputsCount)
	dstInput, dstPath := resolveRef(c.to, toHasInput, toOffset, inputsCount)

	return &pb.FileAction{
		Input:          pb.InputIndex(dstInput),
		SecondaryInput: pb.InputIndex(srcInput),
		Output:         pb.OutputIndex(c.output),
		Action: &pb.FileAction_Copy{
			Copy: &pb.FileActionCopy{
				Src:             srcPath,
				Dest:            dstPath,
				Mode:            -1,
				Timestamp:       -1,
				FollowSymlink:   c.followSymlnk,
				DirCopyContents: true,
				CreateDestPath:  c.createPath,
				AllowWildcard:   true,
			},
		},
	}
}

func (c *Copy) outputIndex() int64 { return int64(c.output) }

// Mkdir creates a directory (and optionally its parents) within a layer.
type Mkdir struct {
	layer       LayerPath
	output      OutputIndex
	makeParents bool
}

// NewMkdir builds a Mkdir action writing to output.
func NewMkdir(output OutputIndex, layer LayerPath) *Mkdir {
	return &Mkdir{layer: layer, output: output}
}

// MakeParents toggles parent-directory creation.
func (m *Mkdir) MakeParents(v bool) *Mkdir { m.makeParents = v; return m }

func (m *Mkdir) inputs(cx *Context) ([]*pb.Input, []*Node, error) {
	input, tail, err := layerPathInput(cx, m.layer)
	if err != nil {
		return nil, nil, err
	}
	if input == nil {
		return nil, nil, nil
	}
	return []*pb.Input{input}, tail, nil
}

func (m *Mkdir) build(inputsCount, inputsOffset int64) *pb.FileAction {
	hasInput := m.layer.Kind == LayerOther
	input, path := resolveRef(m.layer, hasInput, inputsOffset, inputsCount)

	return &pb.FileAction{
		Input:  pb.InputIndex(input),
		Output: pb.OutputIndex(m.output),
		Action: &pb.FileAction_Mkdir{
			Mkdir: &pb.FileActionMkDir{
				Path:        path,
				Mode:        -1,
				Timestamp:   -1,
				MakeParents: m.makeParents,
			},
		},
	}
}

func (m *Mkdir) outputIndex() int64 { return int64(m.output) }

// Mkfile writes literal bytes to a new file within a layer; used by the
// debug-dump path to materialize config/build-plan/build-graph/llb
// artifacts as a scratch layer.
type Mkfile struct {
	layer  LayerPath
	output OutputIndex
	data   []byte
}

// NewMkfile builds a Mkfile action writing to output.
func NewMkfile(output OutputIndex, layer LayerPath) *Mkfile {
	return &Mkfile{layer: layer, output: output}
}

// Data sets the file contents.
func (m *Mkfile) Data(data []byte) *Mkfile { m.data = data; return m }

func (m *Mkfile) inputs(cx *Context) ([]*pb.Input, []*Node, error) {
	input, tail, err := layerPathInput(cx, m.layer)
	if err != nil {
		return nil, nil, err
	}
	if input == nil {
		return nil, nil, nil
	}
	return []*pb.Input{input}, tail, nil
}

func (m *Mkfile) build(inputsCount, inputsOffset int64) *pb.FileAction {
	hasInput := m.layer.Kind == LayerOther
	input, path := resolveRef(m.layer, hasInput, inputsOffset, inputsCount)

	return &pb.FileAction{
		Input:  pb.InputIndex(input),
		Output: pb.OutputIndex(m.output),
		Action: &pb.FileAction_Mkfile{
			Mkfile: &pb.FileActionMkFile{
				Path:      path,
				Mode:      0o644,
				Timestamp: -1,
				Data:      m.data,
			},
		},
	}
}

func (m *Mkfile) outputIndex() int64 { return int64(m.output) }
