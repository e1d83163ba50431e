package llbquery

import (
	"strings"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// serializeAllNodes walks the build graph in topological order, caching
// each node's produced output as it goes, so every dependent sees a
// finished OperationOutput to mount from — matching the original's Topo
// walk over the StableGraph.
func (q *Query) serializeAllNodes() (map[buildgraph.NodeIndex]llbop.OperationOutput, error) {
	if q.builderSource == nil {
		return nil, wharferrors.New(wharferrors.ConfigError, "builder image has no resolved source")
	}

	order, err := q.graph.TopoOrder()
	if err != nil {
		return nil, err
	}

	nodes := make(map[buildgraph.NodeIndex]llbop.OperationOutput, len(order))
	depsCache := make(map[buildgraph.NodeIndex][]llbop.Mount, len(order))

	for _, idx := range order {
		node := q.graph.Node(idx)
		if node == nil {
			continue
		}

		deps := q.maybeCacheDependencies(nodes, depsCache, idx)

		command, outIdx := q.serializeNode(*q.builderSource, deps, node)
		nodes[idx] = command.Output(outIdx)
	}

	return nodes, nil
}

// maybeCacheDependencies computes, once per node and memoized in cache,
// the read-only mounts exposing every transitive dependency's outputs at
// their original target-relative paths — mirroring the original's
// DfsPostOrder over Reversed(graph), flat-mapping each ancestor's outputs
// into a Mount::ReadOnlySelector.
func (q *Query) maybeCacheDependencies(
	nodes map[buildgraph.NodeIndex]llbop.OperationOutput,
	cache map[buildgraph.NodeIndex][]llbop.Mount,
	idx buildgraph.NodeIndex,
) []llbop.Mount {
	if mounts, ok := cache[idx]; ok {
		return mounts
	}

	var mounts []llbop.Mount
	for _, dep := range q.graph.Ancestors(idx) {
		depNode := q.graph.Node(dep)
		if depNode == nil {
			continue
		}

		depOutput, ok := nodes[dep]
		if !ok {
			continue
		}

		for _, out := range depNode.Outputs {
			selector := strings.TrimPrefix(out, wharfconfig.TargetPath)
			mounts = append(mounts, llbop.ReadOnlySelector(depOutput, out, selector))
		}
	}

	cache[idx] = mounts
	return mounts
}

// serializeNode builds the exec (or compile+run pair, for a merged build
// script) implementing one graph node, mounting every dependency and the
// build-script capture/apply tool as needed, and sets its final display
// name.
func (q *Query) serializeNode(source llbop.OperationOutput, deps []llbop.Mount, node *buildgraph.Node) (*llbop.Command, llbop.OutputIndex) {
	var command *llbop.Command
	var index llbop.OutputIndex

	if node.Command.Compile == nil {
		command, index = q.serializeCommand(source, q.createTargetDirs(node.OutputDirs), &node.Command.Run)
	} else {
		compileCommand, compileIndex := q.serializeCommand(
			source, q.createTargetDirs(node.OutputDirs), node.Command.Compile)
		compileCommand = compileCommand.CustomName(prettyPrint(printCompileBuildScript, node.PackageName))

		for _, m := range deps {
			compileCommand = compileCommand.Mount(m)
		}

		command, index = q.serializeCommand(source, compileCommand.Output(compileIndex), &node.Command.Run)
	}

	for _, m := range deps {
		command = command.Mount(m)
	}

	switch node.Kind.Tag {
	case buildgraph.KindBuildScriptOutputConsumer:
		command = command.Mount(llbop.ReadOnlySelector(
			q.config.ToolsImage.Output(), wharfconfig.ToolBuildScriptApply, wharfconfig.ToolBuildScriptApply))
	case buildgraph.KindMergedBuildScript:
		command = command.Mount(llbop.ReadOnlySelector(
			q.config.ToolsImage.Output(), wharfconfig.ToolBuildScriptCapture, wharfconfig.ToolBuildScriptCapture))
	}

	kind, name := printNameFor(node)
	command = command.CustomName(prettyPrint(kind, name))

	return command, index
}

func printNameFor(node *buildgraph.Node) (printKind, string) {
	switch node.Kind.Tag {
	case buildgraph.KindMergedBuildScript:
		return printRunBuildScript, node.PackageName

	case buildgraph.KindBuildScriptOutputConsumer:
		switch node.Kind.Primitive {
		case buildgraph.PrimitiveBinary:
			name, _ := node.BinaryName()
			return printCompileBinary, name
		case buildgraph.PrimitiveTest:
			name, _ := node.TestName()
			return printCompileTest, name
		}

	case buildgraph.KindPrimitive:
		switch node.Kind.Primitive {
		case buildgraph.PrimitiveBinary:
			name, _ := node.BinaryName()
			return printCompileBinary, name
		case buildgraph.PrimitiveTest:
			name, _ := node.TestName()
			return printCompileTest, name
		}
	}

	return printCompileCrate, node.PackageName
}

// serializeCommand builds the base exec every node shares: the builder's
// user/env/CARGO_HOME applied to details' program, mounting the builder
// image (source) read-only at "/", the node's own target-directory layer at
// TargetPath, and a scratch /tmp — plus the build context, read-only,
// when the command's working directory lives inside it.
func (q *Query) serializeCommand(
	source llbop.OperationOutput,
	targetLayer llbop.OperationOutput,
	details *buildgraph.NodeCommandDetails,
) (*llbop.Command, llbop.OutputIndex) {
	command := q.config.Builder.PopulateEnv(llbop.Run(details.Program)).
		Cwd(details.Cwd).
		Args(details.Args...).
		EnvIter(details.Env).
		Mount(llbop.ReadOnlyLayer(source, "/")).
		Mount(llbop.Layer(0, targetLayer, wharfconfig.TargetPath)).
		Mount(llbop.Scratch(1, "/tmp"))

	if strings.HasPrefix(details.Cwd, wharfconfig.ContextPath) {
		command = command.Mount(llbop.ReadOnlyLayer(q.contextSource, wharfconfig.ContextPath))
	}

	return command, 0
}

// createTargetDirs builds the Mkdir sequence that materializes every
// one of a node's output directories (stripped of TargetPath, since it
// is mounted as the whole layer's root) before the node's own command
// writes into them.
func (q *Query) createTargetDirs(dirs []string) llbop.OperationOutput {
	seq := llbop.NewSequence()

	var nextIndex int64
	for _, dir := range dirs {
		stripped := strings.TrimPrefix(dir, wharfconfig.TargetPath)

		var layerPath llbop.LayerPath
		if nextIndex == 0 {
			layerPath = llbop.ScratchPath(stripped)
		} else {
			layerPath = llbop.OwnPath(nextIndex-1, stripped)
		}

		seq.Append(llbop.NewMkdir(llbop.OutputIndex(nextIndex), layerPath).MakeParents(true))
		nextIndex++
	}

	return seq.Output(llbop.OutputIndex(seq.LastOutputIndex()))
}
