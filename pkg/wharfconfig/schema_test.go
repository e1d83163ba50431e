package wharfconfig

import "testing"

func TestExtractConfigBaseMergesAcrossMembers(t *testing.T) {
	members := []RawMetadata{
		{Output: &RawOutputConfig{Image: "alpine:latest", User: "root", Workdir: "/root"}},
		{Builder: &RawBuilderConfig{Image: "rust:latest"}},
		{Binary: []BinaryDefinition{{Name: "binary-1", Destination: "/bin/binary-1"}}},
		{},
		{Binary: []BinaryDefinition{{Name: "binary-2", Destination: "/usr/local/bin/binary-2"}}},
	}

	cfg, err := ExtractConfigBase(members)
	if err != nil {
		t.Fatalf("ExtractConfigBase: %v", err)
	}

	if cfg.Builder.Image != "rust:latest" {
		t.Fatalf("builder image = %q", cfg.Builder.Image)
	}
	if cfg.Output.Image != "alpine:latest" || cfg.Output.User != "root" {
		t.Fatalf("unexpected output config: %+v", cfg.Output)
	}
	if len(cfg.Binaries) != 2 {
		t.Fatalf("expected 2 binaries, got %d", len(cfg.Binaries))
	}
}

func TestExtractConfigBaseRejectsDuplicates(t *testing.T) {
	members := []RawMetadata{
		{Builder: &RawBuilderConfig{Image: "rust:latest"}, Output: &RawOutputConfig{Image: "alpine:latest"}},
		{Builder: &RawBuilderConfig{Image: "rust:latest"}},
	}

	if _, err := ExtractConfigBase(members); err == nil {
		t.Fatal("expected error for duplicated builder section")
	}

	members = []RawMetadata{
		{Builder: &RawBuilderConfig{Image: "rust:latest"}, Output: &RawOutputConfig{Image: "alpine:latest"}},
		{Output: &RawOutputConfig{Image: "rust:latest"}},
	}

	if _, err := ExtractConfigBase(members); err == nil {
		t.Fatal("expected error for duplicated output section")
	}
}

func TestExtractConfigBaseRejectsMissing(t *testing.T) {
	if _, err := ExtractConfigBase([]RawMetadata{{}}); err == nil {
		t.Fatal("expected error for missing sections entirely")
	}

	if _, err := ExtractConfigBase([]RawMetadata{
		{Builder: &RawBuilderConfig{Image: "another"}},
	}); err == nil {
		t.Fatal("expected error for missing output section")
	}

	if _, err := ExtractConfigBase([]RawMetadata{
		{Output: &RawOutputConfig{Image: "another"}},
	}); err == nil {
		t.Fatal("expected error for missing builder section")
	}
}

func TestGuessCargoHome(t *testing.T) {
	if _, ok := guessCargoHome(""); ok {
		t.Fatal("expected no guess for empty user")
	}

	if home, ok := guessCargoHome("root"); !ok || home != "/root/.cargo" {
		t.Fatalf("root guess = %q, %v", home, ok)
	}

	if home, ok := guessCargoHome("den"); !ok || home != "/home/den/.cargo" {
		t.Fatalf("den guess = %q, %v", home, ok)
	}
}
