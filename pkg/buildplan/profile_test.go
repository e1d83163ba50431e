package buildplan

import "testing"

func TestParseProfile(t *testing.T) {
	cases := map[string]Profile{
		"":                 ProfileReleaseBinaries,
		"release-binaries": ProfileReleaseBinaries,
		"debug-binaries":   ProfileDebugBinaries,
		"release-tests":    ProfileReleaseTests,
		"debug-tests":      ProfileDebugTests,
	}

	for in, want := range cases {
		got, err := ParseProfile(in)
		if err != nil {
			t.Fatalf("ParseProfile(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseProfile(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseProfileRejectsUnknown(t *testing.T) {
	if _, err := ParseProfile("bogus"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestProfileIsReleaseIsTests(t *testing.T) {
	if !ProfileReleaseTests.IsRelease() || !ProfileReleaseTests.IsTests() {
		t.Fatal("release-tests should be both release and tests")
	}
	if ProfileDebugBinaries.IsRelease() || ProfileDebugBinaries.IsTests() {
		t.Fatal("debug-binaries should be neither release nor tests")
	}
}
