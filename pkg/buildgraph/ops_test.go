package buildgraph

import (
	"errors"
	"testing"

	"github.com/shmocker/wharf/internal/wharferrors"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// synthetic-plan helper: a library crate with a build script (compile,
// then run), and two dependents — a binary and its test — both of
// which rely on the crate's build-script OUT_DIR.
func syntheticPlan() *buildplan.RawBuildPlan {
	return &buildplan.RawBuildPlan{
		Invocations: []buildplan.RawInvocation{
			{ // 0: build script compile
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "rustc",
				Links: map[string]string{
					"/target/debug/build/widget-abc/build-script-build": "/target/debug/deps/build_script_build-abc",
				},
				Env: map[string]string{},
				Cwd: "/context/widget",
			},
			{ // 1: build script run, depends on 0
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "/target/debug/build/widget-abc/build-script-build",
				Deps:        []int{0},
				Env:         map[string]string{"OUT_DIR": "/target/debug/build/widget-abc/out"},
				Cwd:         "/context/widget",
			},
			{ // 2: lib compile, depends on build script run
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetLib},
				Program:     "rustc",
				Deps:        []int{1},
				Env:         map[string]string{},
				Cwd:         "/context/widget",
			},
			{ // 3: binary, depends on lib
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetBin},
				Program:     "rustc",
				Deps:        []int{2},
				Outputs:     []string{"/target/debug/widget"},
				Env:         map[string]string{},
				Cwd:         "/context/widget",
			},
		},
	}
}

func TestMergeBuildScriptNodesFoldsCompileIntoRun(t *testing.T) {
	plan := syntheticPlan()
	g := From(plan)

	if len(g.Indices()) != 4 {
		t.Fatalf("expected 4 nodes before merge, got %d", len(g.Indices()))
	}

	if err := MergeBuildScriptNodes(g); err != nil {
		t.Fatalf("MergeBuildScriptNodes: %v", err)
	}

	if len(g.Indices()) != 3 {
		t.Fatalf("expected 3 nodes after merge (compile folded away), got %d", len(g.Indices()))
	}

	run := g.Node(1)
	if run == nil {
		t.Fatal("expected run node to survive at its original index")
	}
	if run.Kind.Tag != KindMergedBuildScript {
		t.Fatalf("expected run node to become MergedBuildScript, got %+v", run.Kind)
	}
	if run.Kind.Path != "/target/debug/build/widget-abc/out" {
		t.Fatalf("unexpected OUT_DIR: %q", run.Kind.Path)
	}
	if run.Command.Compile == nil {
		t.Fatal("expected merged node to carry a Compile command")
	}
	runArgs := run.Command.Run.Args
	if run.Command.Run.Program != wharfconfig.ToolBuildScriptCapture || len(runArgs) < 2 || runArgs[0] != "--" || runArgs[1] != "/target/debug/deps/build_script_build-abc" {
		t.Fatalf("expected run wrapped by the capture tool around the linked binary, got %q %v", run.Command.Run.Program, runArgs)
	}
	if g.Node(0) != nil {
		t.Fatal("expected compile node to be removed")
	}
}

func TestApplyBuildScriptOutputsTransformsDependents(t *testing.T) {
	plan := syntheticPlan()
	g, err := NewFromPlan(plan)
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	lib := g.Node(2)
	if lib == nil {
		t.Fatal("expected lib node to survive")
	}
	if lib.Kind.Tag != KindBuildScriptOutputConsumer {
		t.Fatalf("expected lib node to become a build-script output consumer, got %+v", lib.Kind)
	}
	if lib.Kind.Path != "/target/debug/build/widget-abc/out" {
		t.Fatalf("unexpected consumer OUT_DIR: %q", lib.Kind.Path)
	}
	if lib.Kind.Primitive != PrimitiveOther {
		t.Fatalf("expected original primitive kind preserved as Other (lib target), got %v", lib.Kind.Primitive)
	}

	bin := g.Node(3)
	if bin == nil {
		t.Fatal("expected binary node to survive")
	}
	if bin.Kind.Tag != KindPrimitive || bin.Kind.Primitive != PrimitiveBinary {
		t.Fatalf("binary node is two hops from the build script and should be untouched, got %+v", bin.Kind)
	}

	name, ok := bin.BinaryName()
	if !ok || name != "widget" {
		t.Fatalf("expected binary name %q, got %q (ok=%v)", "widget", name, ok)
	}
}

func TestMergeBuildScriptNodesWiresDependencyBuildScript(t *testing.T) {
	plan := &buildplan.RawBuildPlan{
		Invocations: []buildplan.RawInvocation{
			{ // 0: dependency's build script compile
				PackageName: "upstream",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "rustc",
				Links: map[string]string{
					"/target/debug/build/upstream-xyz/build-script-build": "/target/debug/deps/build_script_build-xyz",
				},
				Env: map[string]string{},
				Cwd: "/context/upstream",
			},
			{ // 1: dependency's build script run
				PackageName: "upstream",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "/target/debug/build/upstream-xyz/build-script-build",
				Deps:        []int{0},
				Env:         map[string]string{"OUT_DIR": "/target/debug/build/upstream-xyz/out"},
				Cwd:         "/context/upstream",
			},
			{ // 2: this crate's build script compile
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "rustc",
				Links: map[string]string{
					"/target/debug/build/widget-abc/build-script-build": "/target/debug/deps/build_script_build-abc",
				},
				Env: map[string]string{},
				Cwd: "/context/widget",
			},
			{ // 3: this crate's build script run, depends on upstream's
				// build-script run (a links-based metadata dependency) and
				// its own build-script compile
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:     "/target/debug/build/widget-abc/build-script-build",
				Deps:        []int{1, 2},
				Env:         map[string]string{"OUT_DIR": "/target/debug/build/widget-abc/out"},
				Cwd:         "/context/widget",
			},
		},
	}

	g := From(plan)
	if err := MergeBuildScriptNodes(g); err != nil {
		t.Fatalf("MergeBuildScriptNodes: %v", err)
	}

	run := g.Node(3)
	if run == nil {
		t.Fatal("expected run node to survive")
	}
	if run.Kind.Tag != KindMergedBuildScript {
		t.Fatalf("expected run node to merge with its own compile node, got %+v", run.Kind)
	}

	found := false
	for _, arg := range run.Command.Run.Args {
		if arg == "--with-metadata-from=/target/debug/build/upstream-xyz/out" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dependency build script OUT_DIR wired in as --with-metadata-from, got args %v", run.Command.Run.Args)
	}

	if g.Node(2) != nil {
		t.Fatal("expected this crate's own compile node to be removed")
	}

	// The dependency's build script is merged too — on its own right, as
	// a BuildScriptRun node in the outer sweep — not because widget
	// depends on it.
	if g.Node(0) != nil {
		t.Fatal("expected dependency's build script compile node to be folded into its own run node")
	}

	upstream := g.Node(1)
	if upstream == nil || upstream.Kind.Tag != KindMergedBuildScript {
		t.Fatalf("expected upstream's own run node to merge independently, got %+v", upstream)
	}
}

func TestMergeBuildScriptNodesRejectsUnmatchedRun(t *testing.T) {
	plan := &buildplan.RawBuildPlan{
		Invocations: []buildplan.RawInvocation{
			{ // 0: a build-script run with no incoming compile node at all
				PackageName:    "widget",
				PackageVersion: "0.1.0",
				TargetKind:     []buildplan.RawTargetKind{buildplan.TargetCustomBuild},
				Program:        "/target/debug/build/widget-abc/build-script-build",
				Env:            map[string]string{"OUT_DIR": "/target/debug/build/widget-abc/out"},
				Cwd:            "/context/widget",
			},
		},
	}

	g := From(plan)
	err := MergeBuildScriptNodes(g)
	if err == nil {
		t.Fatal("expected an error for an orphan build-script run node")
	}

	if !errors.Is(err, wharferrors.ErrUnmatchedBuildScript) {
		t.Fatalf("expected ErrUnmatchedBuildScript, got %v", err)
	}

	var wharfErr *wharferrors.Error
	if !errors.As(err, &wharfErr) || wharfErr.Kind != wharferrors.GraphError {
		t.Fatalf("expected a GraphError, got %v", err)
	}
}
