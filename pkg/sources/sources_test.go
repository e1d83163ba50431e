package sources

import (
	"encoding/json"
	"testing"

	"github.com/shmocker/wharf/pkg/buildgraph"
)

func TestSourceKindRoundTripsRegistry(t *testing.T) {
	url := "https://static.crates.io/crates/widget/widget-1.0.0.crate"
	want := SourceKind{Registry: &url}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got SourceKind
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Registry == nil || *got.Registry != url {
		t.Fatalf("expected registry url %q, got %+v", url, got)
	}
}

func TestSourceKindRoundTripsLocal(t *testing.T) {
	data, err := json.Marshal(SourceKind{Local: true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if string(data) != `"local"` {
		t.Fatalf("expected bare \"local\", got %s", data)
	}

	var got SourceKind
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Local {
		t.Fatalf("expected Local, got %+v", got)
	}
}

func TestSourceKindRoundTripsGitCheckout(t *testing.T) {
	ref := "v1.2.3"
	want := SourceKind{Git: &GitCheckout{Repo: "https://github.com/example/widget", Reference: &ref}}

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got SourceKind
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Git == nil || got.Git.Repo != want.Git.Repo || got.Git.Reference == nil || *got.Git.Reference != ref {
		t.Fatalf("unexpected git checkout: %+v", got)
	}
}

func TestSourceKindRejectsUnknownTag(t *testing.T) {
	var got SourceKind
	if err := json.Unmarshal([]byte(`"remote"`), &got); err == nil {
		t.Fatal("expected an error for an unrecognized bare tag")
	}
}

func TestSourcesUnmarshalsTransparentMap(t *testing.T) {
	raw := []byte(`{"widget:1.0.0":"local","gadget:2.0.0":{"registry-url":"https://static.crates.io/x"}}`)

	var s Sources
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	node := &buildgraph.Node{PackageName: "widget", PackageVersion: "1.0.0"}
	kind, err := s.FindForNode(node)
	if err != nil {
		t.Fatalf("FindForNode: %v", err)
	}
	if !kind.Local {
		t.Fatalf("expected a local source, got %+v", kind)
	}
}

func TestSourcesFindForNodeMissing(t *testing.T) {
	s := Sources{byID: map[string]SourceKind{}}

	node := &buildgraph.Node{PackageName: "widget", PackageVersion: "1.0.0"}
	if _, err := s.FindForNode(node); err == nil {
		t.Fatal("expected an error when no source entry matches")
	}
}
