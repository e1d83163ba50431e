package buildgraph

import (
	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildplan"
)

// MergeBuildScriptNodes is the graph transform's first phase: every
// BuildScriptRun node absorbs whichever of its incoming
// BuildScriptCompile neighbors actually produced the binary it invokes,
// becoming one MergedBuildScript node. A BuildScriptCompile neighbor
// that turns out to belong to one of the run node's *dependencies*
// instead (DependencyBuildScript) is wired in as extra
// --with-metadata-from input rather than merged, and the search
// continues to the next incoming neighbor.
//
// Nodes folded away are only removed once the full sweep over every
// node index has completed; until then they stay in the graph with
// their edges already copied onto the merged node.
func MergeBuildScriptNodes(g *BuildGraph) error {
	var forRemoval []NodeIndex

	for _, index := range g.Indices() {
		node := g.Node(index)
		if node == nil || node.Kind.Tag != KindPrimitive || node.Kind.Primitive != PrimitiveBuildScriptRun {
			continue
		}

		var dependencyBuildScripts []NodeIndex

		for _, compileIndex := range g.Incoming(index) {
			compileNode := g.Node(compileIndex)
			if compileNode == nil {
				continue
			}

			result, err := node.AddBuildScriptCompileNode(*compileNode)
			if err != nil {
				return err
			}

			switch result {
			case MergeOk:
				g.redirectEdges(compileIndex, index)
				forRemoval = append(forRemoval, compileIndex)
			case MergeDependencyBuildScript:
				dependencyBuildScripts = append(dependencyBuildScripts, compileIndex)
				continue
			case MergeAlreadyMerged:
			}

			break
		}

		if node.Command.Compile == nil {
			return wharferrors.Wrapf(wharferrors.GraphError, wharferrors.ErrUnmatchedBuildScript,
				"crate %s:%s", node.PackageName, node.PackageVersion)
		}

		// Deferred until the search above settles: whether "node" merged
		// with its own compile step this round decides whether its
		// command is in the WithBuildscript shape add_dependency_buildscript
		// requires before it can prepend --with-metadata-from.
		for _, depIndex := range dependencyBuildScripts {
			dep := g.Node(depIndex)
			if dep == nil {
				continue
			}
			node.AddDependencyBuildScript(*dep)
			g.AddEdge(depIndex, index)
		}
	}

	for _, index := range forRemoval {
		g.RemoveNode(index)
	}

	return nil
}

// ApplyBuildScriptOutputs is the graph transform's second phase: every
// node downstream of a MergedBuildScript node (other than another
// merged build script) is rewritten to consume that build script's
// OUT_DIR via the build-script-apply wrapper.
func ApplyBuildScriptOutputs(g *BuildGraph) {
	for _, index := range g.Indices() {
		node := g.Node(index)
		if node == nil || node.Kind.Tag != KindMergedBuildScript {
			continue
		}
		outDir := node.Kind.Path

		for _, dependent := range g.Outgoing(index) {
			depNode := g.Node(dependent)
			if depNode == nil || depNode.Kind.Tag == KindMergedBuildScript {
				continue
			}
			depNode.TransformIntoBuildScriptConsumer(outDir)
		}
	}
}

// NewFromPlan builds a graph from a build plan and runs both merge
// phases over it, returning it ready for terminal composition (C7).
func NewFromPlan(plan *buildplan.RawBuildPlan) (*BuildGraph, error) {
	g := From(plan)

	if err := MergeBuildScriptNodes(g); err != nil {
		return nil, err
	}

	ApplyBuildScriptOutputs(g)

	return g, nil
}
