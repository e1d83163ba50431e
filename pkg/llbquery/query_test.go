package llbquery

import (
	"testing"

	"github.com/shmocker/wharf/pkg/buildgraph"
	"github.com/shmocker/wharf/pkg/buildplan"
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

func testPlan() *buildplan.RawBuildPlan {
	return &buildplan.RawBuildPlan{
		Invocations: []buildplan.RawInvocation{
			{ // 0: binary
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetBin},
				Program:     "rustc",
				Outputs:     []string{"/target/release/widget"},
				Env:         map[string]string{},
				Cwd:         "/context/widget",
			},
			{ // 1: its test
				PackageName: "widget",
				TargetKind:  []buildplan.RawTargetKind{buildplan.TargetTest},
				Program:     "rustc",
				Args:        []string{"--test"},
				Outputs:     []string{"/target/release/deps/widget-abcdef"},
				Env:         map[string]string{},
				Cwd:         "/context/widget",
			},
		},
	}
}

func testConfig(profile buildplan.Profile, binaries []wharfconfig.BinaryDefinition) *buildplan.Config {
	return &buildplan.Config{
		Builder: wharfconfig.NewBuilderConfigForTest(
			llbop.Image("rust:latest"), "/root/.cargo", map[string]string{}, "root"),
		Output: wharfconfig.NewOutputConfigForTest(
			llbop.Image("alpine:latest"), wharfconfig.RawOutputConfig{Image: "alpine:latest"}, map[string]string{}),
		ToolsImage:      llbop.Image(wharfconfig.ToolsImageRef),
		Binaries:        binaries,
		Profile:         profile,
		DefaultFeatures: true,
	}
}

func TestQueryOutputsSelectsBinaries(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	cfg := testConfig(buildplan.ProfileReleaseBinaries, []wharfconfig.BinaryDefinition{
		{Name: "widget", Destination: "/usr/bin/widget"},
	})

	q := New(g, cfg)
	outs := q.outputs()

	if len(outs) != 1 {
		t.Fatalf("expected 1 binary output, got %d", len(outs))
	}
	if outs[0].Path != "/usr/bin/widget" {
		t.Fatalf("unexpected destination: %q", outs[0].Path)
	}
}

func TestQueryOutputsSelectsTests(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	cfg := testConfig(buildplan.ProfileReleaseTests, nil)

	q := New(g, cfg)
	outs := q.outputs()

	if len(outs) != 1 {
		t.Fatalf("expected 1 test output, got %d", len(outs))
	}
	if outs[0].Path != "/test/release/deps/widget-abcdef" {
		t.Fatalf("unexpected test destination: %q", outs[0].Path)
	}
}

func TestQueryOutputsIgnoresUnmappedBinary(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	// No binary destination configured for "widget" at all.
	cfg := testConfig(buildplan.ProfileReleaseBinaries, nil)

	q := New(g, cfg)
	if outs := q.outputs(); len(outs) != 0 {
		t.Fatalf("expected no outputs when no binary is mapped, got %d", len(outs))
	}
}

func TestQueryTerminalComposesBinaryOutput(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	cfg := testConfig(buildplan.ProfileReleaseBinaries, []wharfconfig.BinaryDefinition{
		{Name: "widget", Destination: "/usr/bin/widget"},
	})

	q := New(g, cfg)

	terminal, err := q.Terminal()
	if err != nil {
		t.Fatalf("Terminal: %v", err)
	}
	if terminal == nil {
		t.Fatal("expected a non-nil terminal")
	}

	if _, err := q.Definition(); err != nil {
		t.Fatalf("Definition: %v", err)
	}
}

func TestQueryTerminalFailsWithNoOutputs(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	// Nothing maps to any binary and this isn't a tests profile.
	cfg := testConfig(buildplan.ProfileReleaseBinaries, nil)

	q := New(g, cfg)
	if _, err := q.Terminal(); err == nil {
		t.Fatal("expected an error when nothing was selected to copy out")
	}
}

func TestQueryImageSpecForTestsProfileSynthesizesEntrypoint(t *testing.T) {
	g, err := buildgraph.NewFromPlan(testPlan())
	if err != nil {
		t.Fatalf("NewFromPlan: %v", err)
	}

	cfg := testConfig(buildplan.ProfileReleaseTests, nil)

	q := New(g, cfg)
	spec, err := q.ImageSpec()
	if err != nil {
		t.Fatalf("ImageSpec: %v", err)
	}

	if len(spec.Config.Entrypoint) != 2 || spec.Config.Entrypoint[0] != wharfconfig.ToolTestRunner {
		t.Fatalf("unexpected entrypoint: %v", spec.Config.Entrypoint)
	}
	if spec.Config.Entrypoint[1] != "/test/release/deps/widget-abcdef" {
		t.Fatalf("unexpected test binary in entrypoint: %v", spec.Config.Entrypoint)
	}
}
