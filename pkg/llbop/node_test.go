package llbop

import (
	"testing"
)

func TestSerializeDeterministic(t *testing.T) {
	img := Image("rust:latest")
	exec := Run("rustc").Args("--crate-name", "app").
		Mount(ReadOnlyLayer(img.Output(), "/")).
		Mount(Scratch(0, "/target"))

	term := With(exec.Output(0))

	first, err := term.Definition()
	if err != nil {
		t.Fatalf("first Definition: %v", err)
	}

	second, err := term.Definition()
	if err != nil {
		t.Fatalf("second Definition: %v", err)
	}

	if len(first.Def) != len(second.Def) {
		t.Fatalf("definitions differ in length: %d vs %d", len(first.Def), len(second.Def))
	}

	for i := range first.Def {
		if string(first.Def[i]) != string(second.Def[i]) {
			t.Fatalf("definition entry %d differs between runs", i)
		}
	}
}

func TestContentAddressedDedup(t *testing.T) {
	img := Image("rust:latest")

	// Two structurally identical exec nodes over the same source should
	// collapse to one entry in the flat Definition.
	a := Run("rustc").Args("x").Mount(ReadOnlyLayer(img.Output(), "/"))
	b := Run("rustc").Args("x").Mount(ReadOnlyLayer(img.Output(), "/"))

	seq := NewSequence().
		Append(NewCopy(0, OtherPath(a.Output(0), "/out"), ScratchPath("/a"))).
		Append(NewCopy(1, OtherPath(b.Output(0), "/out"), OwnPath(0, "/b")))

	term := With(seq.Output(1))

	def, err := term.Definition()
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}

	// img appears once (shared leaf), a and b collapse to one exec node,
	// plus the sequence head and the terminal node: 4 unique nodes total.
	if len(def.Def) != 4 {
		t.Fatalf("expected 4 unique nodes, got %d", len(def.Def))
	}
}

func TestCycleDetection(t *testing.T) {
	cx := NewContext()

	cmd := Run("rustc")
	self := Out(cmd, 0)
	cmd.Mount(ReadOnlyLayer(self, "/self"))

	if _, err := Serialize(cx, cmd); err == nil {
		t.Fatal("expected cycle detection error, got nil")
	}
}

func TestSequenceLastOutputIndex(t *testing.T) {
	seq := NewSequence()
	if seq.LastOutputIndex() != -1 {
		t.Fatalf("expected -1 before any append, got %d", seq.LastOutputIndex())
	}

	seq.Append(NewMkdir(0, ScratchPath("/a")).MakeParents(true))
	if seq.LastOutputIndex() != 0 {
		t.Fatalf("expected 0 after first append, got %d", seq.LastOutputIndex())
	}

	seq.Append(NewMkdir(1, OwnPath(0, "/b")).MakeParents(true))
	if seq.LastOutputIndex() != 1 {
		t.Fatalf("expected 1 after second append, got %d", seq.LastOutputIndex())
	}
}
