package llbquery

import (
	"path"
	"strings"

	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// BuildOutput is one graph node selected to land in the output image:
// a binary at its configured destination, or (in a tests profile) a
// test binary under /test.
type BuildOutput struct {
	Index buildgraph.NodeIndex
	Node  *buildgraph.Node
	Path  string
}

type outputMapping struct {
	From llbop.LayerPath
	To   string
}

// Terminal composes the final operation: every selected output copied
// into the output image layer, any static assets and post-install
// commands from the output config chained after it.
func (q *Query) Terminal() (*llbop.Terminal, error) {
	nodes, err := q.serializeAllNodes()
	if err != nil {
		return nil, err
	}

	mapped := q.mappedOutputs(nodes)
	if len(mapped) == 0 {
		return nil, errNoOutputs()
	}

	seq := llbop.NewSequence().CustomName("Composing the output image")

	var nextIndex int64
	for _, m := range mapped {
		seq.Append(llbop.NewCopy(llbop.OutputIndex(nextIndex), m.From, q.composedLayerPath(nextIndex, m.To)).
			CreatePath(true))
		nextIndex++
	}

	for _, asset := range q.config.Output.CopyCommands() {
		from := llbop.OtherPath(q.contextSource, asset.Source)
		seq.Append(llbop.NewCopy(llbop.OutputIndex(nextIndex), from, q.composedLayerPath(nextIndex, asset.Destination)).
			CreatePath(true))
		nextIndex++
	}

	current := seq.Output(llbop.OutputIndex(nextIndex - 1))

	for _, step := range q.config.Output.PostInstallCommands() {
		if len(step.Command) == 0 {
			continue
		}

		program := step.Command[0]
		args := step.Command[1:]

		cmd := q.config.Output.PopulateEnv(llbop.Run(program)).
			Args(args...).
			EnvIter(step.Env).
			Mount(llbop.Layer(0, current, "/")).
			CustomName(prettyPrint(printCustomCommand, displayCommand(step.Command)))

		current = cmd.Output(0)
	}

	return llbop.With(current), nil
}

// composedLayerPath is the destination LayerPath for the nth action
// appended to the terminal's copy sequence: the output image's own base
// layer for the very first action, or the sequence's own prior output
// for every action after it.
func (q *Query) composedLayerPath(nextIndex int64, to string) llbop.LayerPath {
	if nextIndex == 0 {
		return q.outputLayerPath(to)
	}
	return llbop.OwnPath(nextIndex-1, to)
}

// outputLayerPath roots a destination path at the output image's base
// layer (its own config/commands chain), or at scratch when the output
// image is the literal empty layer.
func (q *Query) outputLayerPath(p string) llbop.LayerPath {
	if q.outputSource == nil {
		return llbop.ScratchPath(p)
	}
	return llbop.OtherPath(*q.outputSource, p)
}

// outputs selects which graph nodes land in the final image: binaries
// profiles match every Binary node against the configured destinations;
// test profiles collect every Test node (merged build-script consumer
// or not), destined for /test/<target-relative path>.
func (q *Query) outputs() []BuildOutput {
	var out []BuildOutput

	if q.config.Profile.IsTests() {
		for _, idx := range q.graph.Indices() {
			node := q.graph.Node(idx)
			if node == nil || len(node.Outputs) == 0 {
				continue
			}

			isTest := (node.Kind.Tag == buildgraph.KindPrimitive && node.Kind.Primitive == buildgraph.PrimitiveTest) ||
				(node.Kind.Tag == buildgraph.KindBuildScriptOutputConsumer && node.Kind.Primitive == buildgraph.PrimitiveTest)
			if !isTest {
				continue
			}

			stripped := strings.TrimPrefix(node.Outputs[0], wharfconfig.TargetPath)
			out = append(out, BuildOutput{Index: idx, Node: node, Path: path.Join("/test", stripped)})
		}

		return out
	}

	for _, idx := range q.graph.Indices() {
		node := q.graph.Node(idx)
		if node == nil {
			continue
		}

		name, ok := node.BinaryName()
		if !ok {
			continue
		}

		bin, found := q.config.FindBinary(name)
		if !found {
			continue
		}

		out = append(out, BuildOutput{Index: idx, Node: node, Path: bin.Destination})
	}

	return out
}

// mappedOutputs resolves each selected output against its serialized
// node's produced operation, appending the test runner binary itself
// for test profiles so it lands alongside the tests it drives.
func (q *Query) mappedOutputs(nodes map[buildgraph.NodeIndex]llbop.OperationOutput) []outputMapping {
	var mapped []outputMapping

	for _, o := range q.outputs() {
		if len(o.Node.Outputs) == 0 {
			continue
		}

		produced, ok := nodes[o.Index]
		if !ok {
			continue
		}

		stripped := strings.TrimPrefix(o.Node.Outputs[0], wharfconfig.TargetPath)
		mapped = append(mapped, outputMapping{From: llbop.OtherPath(produced, stripped), To: o.Path})
	}

	if q.config.Profile.IsTests() {
		mapped = append(mapped, outputMapping{
			From: llbop.OtherPath(q.config.ToolsImage.Output(), wharfconfig.ToolTestRunner),
			To:   wharfconfig.ToolTestRunner,
		})
	}

	return mapped
}
