// Package buildgraph turns a flat Cargo build plan into the dependency
// graph of compile/link steps the terminal composition step (C7)
// walks, folding each build-script's two raw invocations (compile the
// build script, then run it) into one merged node and propagating its
// OUT_DIR to every downstream consumer (C6).
package buildgraph

import (
	"path"
	"sort"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// PrimitiveNodeKind is the raw Cargo target kind a build-plan invocation
// resolves to, before any build-script merging happens.
type PrimitiveNodeKind int

const (
	PrimitiveTest PrimitiveNodeKind = iota
	PrimitiveBinary
	PrimitiveExample
	PrimitiveOther
	PrimitiveBuildScriptCompile
	PrimitiveBuildScriptRun
)

// NodeKindTag discriminates the three shapes a Node's Kind can take
// once build-script merging has run.
type NodeKindTag int

const (
	// KindPrimitive is an unmerged node, still tagged with its raw
	// PrimitiveNodeKind.
	KindPrimitive NodeKindTag = iota

	// KindMergedBuildScript is a BuildScriptRun node that absorbed its
	// matching BuildScriptCompile node; Path is its OUT_DIR.
	KindMergedBuildScript

	// KindBuildScriptOutputConsumer is any node that depends on a merged
	// build script's OUT_DIR; Primitive remembers its original kind and
	// Path carries the OUT_DIR it now consumes.
	KindBuildScriptOutputConsumer
)

// NodeKind is the tagged union node.rs's `NodeKind<P>` enum represents
// as three separate Rust variants.
type NodeKind struct {
	Tag       NodeKindTag
	Primitive PrimitiveNodeKind // valid for Primitive and BuildScriptOutputConsumer
	Path      string            // OUT_DIR; valid for MergedBuildScript and BuildScriptOutputConsumer
}

// Link is one entry of a node's outputs-to-source mapping (dest -> the
// real file it is linked/copied from), ordered by Dest to match the
// original's BTreeMap<PathBuf, PathBuf> iteration order — several
// Node methods take "the first link" and depend on that order being
// deterministic.
type Link struct {
	Dest string
	Src  string
}

// NodeCommandDetails is one concrete exec invocation: its program,
// arguments, environment, and working directory.
type NodeCommandDetails struct {
	Env     map[string]string
	Program string
	Cwd     string
	Args    []string
}

// UseWrapper rewrites this command to invoke wrapper instead, passing
// the original program (preceded by a literal "--") as its first
// arguments, ahead of whatever arguments were already present.
func (d *NodeCommandDetails) UseWrapper(wrapper string) {
	original := d.Program
	d.Program = wrapper

	oldArgs := d.Args
	d.Args = append([]string{"--", original}, oldArgs...)
}

// NodeCommand is either a single command (Compile == nil) or a
// build-script pair: Compile builds the build script binary, Run
// invokes it (wrapped to capture its reported OUT_DIR/rerun directives).
type NodeCommand struct {
	Compile *NodeCommandDetails
	Run     NodeCommandDetails
}

// Node is one compile/link/build-script step of the graph.
type Node struct {
	PackageName    string
	PackageVersion string

	Command NodeCommand
	Kind    NodeKind

	Outputs    []string
	OutputDirs []string
	Links      []Link
}

// BuildScriptMergeResult reports what AddBuildScriptCompileNode did.
type BuildScriptMergeResult int

const (
	MergeOk BuildScriptMergeResult = iota
	MergeDependencyBuildScript
	MergeAlreadyMerged
)

// nodeFromInvocation converts one build-plan invocation into its
// initial, unmerged Node.
func nodeFromInvocation(inv *buildplan.RawInvocation) Node {
	links := make([]Link, 0, len(inv.Links))
	for dest, src := range inv.Links {
		links = append(links, Link{Dest: dest, Src: src})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Dest < links[j].Dest })

	outputDirs := make([]string, 0, len(inv.Outputs))
	for _, out := range inv.Outputs {
		outputDirs = append(outputDirs, path.Dir(out))
	}

	return Node{
		PackageName:    inv.PackageName,
		PackageVersion: inv.PackageVersion,
		Kind:           kindFromInvocation(inv),
		Command: NodeCommand{
			Run: NodeCommandDetails{
				Program: inv.Program,
				Args:    append([]string(nil), inv.Args...),
				Env:     copyEnv(inv.Env),
				Cwd:     inv.Cwd,
			},
		},
		Outputs:    append([]string(nil), inv.Outputs...),
		OutputDirs: outputDirs,
		Links:      links,
	}
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func kindFromInvocation(inv *buildplan.RawInvocation) NodeKind {
	for _, a := range inv.Args {
		if a == "--test" {
			return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveTest}
		}
	}

	hasTarget := func(kind buildplan.RawTargetKind) bool {
		for _, k := range inv.TargetKind {
			if k == kind {
				return true
			}
		}
		return false
	}

	switch {
	case hasTarget(buildplan.TargetBin):
		return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveBinary}
	case hasTarget(buildplan.TargetExample):
		return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveExample}
	case hasTarget(buildplan.TargetCustomBuild) && inv.Program != "rustc":
		return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveBuildScriptRun}
	case hasTarget(buildplan.TargetCustomBuild) && inv.Program == "rustc":
		return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveBuildScriptCompile}
	default:
		return NodeKind{Tag: KindPrimitive, Primitive: PrimitiveOther}
	}
}

// BinaryName returns the destination binary's file name for Binary
// nodes (merged or not), falling back to the package name when no link
// renamed it.
func (n *Node) BinaryName() (string, bool) {
	if !n.isKind(PrimitiveBinary) {
		return "", false
	}
	return n.firstLinkNameOr(n.PackageName), true
}

// TestName is BinaryName's counterpart for Test nodes.
func (n *Node) TestName() (string, bool) {
	if !n.isKind(PrimitiveTest) {
		return "", false
	}
	return n.firstLinkNameOr(n.PackageName), true
}

func (n *Node) isKind(primitive PrimitiveNodeKind) bool {
	switch n.Kind.Tag {
	case KindPrimitive:
		return n.Kind.Primitive == primitive
	case KindBuildScriptOutputConsumer:
		return n.Kind.Primitive == primitive
	default:
		return false
	}
}

func (n *Node) firstLinkNameOr(fallback string) string {
	if len(n.Links) == 0 {
		return fallback
	}
	return path.Base(n.Links[0].Dest)
}

// IntoCommandDetails returns the command details that represent this
// node's source-producing step: the build-script compile step when
// merged, otherwise the node's own (as yet unmerged) command.
func (n Node) IntoCommandDetails() NodeCommandDetails {
	if n.Command.Compile != nil {
		return *n.Command.Compile
	}
	return n.Command.Run
}

// SourcesPath is the working directory rustc was invoked from for this
// node's package sources.
func (n *Node) SourcesPath() string {
	if n.Command.Compile != nil {
		return n.Command.Compile.Cwd
	}
	return n.Command.Run.Cwd
}

// linkSourceFor returns the real source path a link maps dest to, if
// any — used to resolve a build-script run invocation's placeholder
// program path back to the actual compiled build-script binary.
func (n *Node) linkSourceFor(dest string) (string, bool) {
	for _, l := range n.Links {
		if l.Dest == dest {
			return l.Src, true
		}
	}
	return "", false
}

// AddBuildScriptCompileNode folds compileNode (a BuildScriptCompile
// node) into n (a BuildScriptRun node), provided compileNode's links
// actually produced the binary n's command invokes — otherwise
// compileNode belongs to one of n's dependencies, not n itself.
func (n *Node) AddBuildScriptCompileNode(compileNode Node) (BuildScriptMergeResult, error) {
	if n.Command.Compile != nil {
		return MergeAlreadyMerged, nil
	}

	details := n.Command.Run

	realPath, ok := compileNode.linkSourceFor(details.Program)
	if !ok {
		return MergeDependencyBuildScript, nil
	}

	details.Program = realPath
	details.UseWrapper(wharfconfig.ToolBuildScriptCapture)

	outDir, ok := details.Env["OUT_DIR"]
	if !ok {
		return 0, wharferrors.New(wharferrors.GraphError, "build script run invocation has no OUT_DIR")
	}

	n.Kind = NodeKind{Tag: KindMergedBuildScript, Path: outDir}
	n.OutputDirs = append(n.OutputDirs, compileNode.OutputDirs...)
	n.OutputDirs = append(n.OutputDirs, outDir)
	n.Outputs = append(n.Outputs, outDir)

	compileDetails := compileNode.IntoCommandDetails()
	n.Command = NodeCommand{Compile: &compileDetails, Run: details}

	return MergeOk, nil
}

// TransformIntoBuildScriptConsumer rewrites n to consume a merged build
// script's OUT_DIR, wrapping its command through the apply tool so the
// captured rerun-if/cfg directives from that OUT_DIR are replayed.
func (n *Node) TransformIntoBuildScriptConsumer(outDir string) {
	if n.Command.Compile == nil {
		n.Command.Run.UseWrapper(wharfconfig.ToolBuildScriptApply)
	}

	original := PrimitiveOther
	if n.Kind.Tag == KindPrimitive {
		original = n.Kind.Primitive
	}

	n.Kind = NodeKind{Tag: KindBuildScriptOutputConsumer, Primitive: original, Path: outDir}
}

// AddDependencyBuildScript records dependency's OUT_DIR as additional
// metadata input to n's run step (n must already be a merged build
// script itself — a build script can depend on another crate's build
// script output too).
func (n *Node) AddDependencyBuildScript(dependency Node) {
	outDir, ok := dependency.Command.Run.Env["OUT_DIR"]
	if !ok {
		return
	}

	if n.Command.Compile != nil {
		n.Command.Run.Args = append([]string{"--with-metadata-from=" + outDir}, n.Command.Run.Args...)
	}
}
