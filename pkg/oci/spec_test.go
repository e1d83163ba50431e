package oci

import (
	"encoding/json"
	"testing"
)

func TestExposedPortRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want ExposedPort
	}{
		{"8080/tcp", TCP(8080)},
		{"8081/udp", UDP(8081)},
		{"80", TCP(80)},
	}

	for _, c := range cases {
		got, err := ParseExposedPort(c.in)
		if err != nil {
			t.Fatalf("ParseExposedPort(%q): %v", c.in, err)
		}

		if got != c.want {
			t.Fatalf("ParseExposedPort(%q) = %+v, want %+v", c.in, got, c.want)
		}

		if got.String() != c.want.String() {
			t.Fatalf("round trip mismatch for %q: got %q", c.in, got.String())
		}
	}
}

func TestExposedPortRejectsUnknownProto(t *testing.T) {
	if _, err := ParseExposedPort("80/sctp"); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestImageConfigExposedPortsMarshalAsMap(t *testing.T) {
	cfg := ImageConfig{ExposedPorts: []ExposedPort{TCP(8080), UDP(53)}}

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var roundTripped ImageConfig
	if err := roundTripped.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	if len(roundTripped.ExposedPorts) != 2 {
		t.Fatalf("expected 2 exposed ports after round trip, got %d", len(roundTripped.ExposedPorts))
	}
}

// TestImageConfigEnvIsJSONArray guards against a regression where Env
// was encoded as a JSON object: real OCI image configs (and BuildKit's
// own ResolveImageConfig RPC) always encode it as an array of
// "NAME=VALUE" strings.
func TestImageConfigEnvIsJSONArray(t *testing.T) {
	cfg := ImageConfig{Env: map[string]string{"PATH": "/usr/bin", "RUSTUP_HOME": "/usr/local/rustup"}}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw struct {
		Env []string `json:"Env"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Env did not decode as a JSON array: %v (payload: %s)", err, data)
	}

	want := map[string]bool{"PATH=/usr/bin": true, "RUSTUP_HOME=/usr/local/rustup": true}
	if len(raw.Env) != len(want) {
		t.Fatalf("expected %d Env entries, got %d: %v", len(want), len(raw.Env), raw.Env)
	}
	for _, kv := range raw.Env {
		if !want[kv] {
			t.Fatalf("unexpected Env entry %q", kv)
		}
	}
}

// TestImageConfigEnvRoundTripsFromRealWireInput decodes exactly the
// shape a real upstream image (e.g. rust:latest) yields, to catch the
// map-shaped Env regression this test's name guards against.
func TestImageConfigEnvRoundTripsFromRealWireInput(t *testing.T) {
	input := []byte(`{
		"User": "root",
		"Env": ["PATH=/usr/local/cargo/bin:/usr/bin", "RUSTUP_HOME=/usr/local/rustup", "CARGO_HOME=/usr/local/cargo"],
		"Entrypoint": ["/bin/sh", "-c"],
		"WorkingDir": "/"
	}`)

	var cfg ImageConfig
	if err := json.Unmarshal(input, &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := map[string]string{
		"PATH":        "/usr/local/cargo/bin:/usr/bin",
		"RUSTUP_HOME": "/usr/local/rustup",
		"CARGO_HOME":  "/usr/local/cargo",
	}
	if len(cfg.Env) != len(want) {
		t.Fatalf("expected %d env entries, got %d: %v", len(want), len(cfg.Env), cfg.Env)
	}
	for k, v := range want {
		if cfg.Env[k] != v {
			t.Fatalf("Env[%q] = %q, want %q", k, cfg.Env[k], v)
		}
	}

	reEncoded, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("re-Marshal: %v", err)
	}

	var roundTripped ImageConfig
	if err := json.Unmarshal(reEncoded, &roundTripped); err != nil {
		t.Fatalf("re-Unmarshal: %v", err)
	}
	if len(roundTripped.Env) != len(want) {
		t.Fatalf("round trip lost entries: got %v, want %v", roundTripped.Env, want)
	}
}

func TestImageConfigEnvRejectsMalformedPair(t *testing.T) {
	if err := json.Unmarshal([]byte(`{"Env": ["NOT_A_PAIR"]}`), &ImageConfig{}); err == nil {
		t.Fatal("expected error for Env entry without '='")
	}
}

func TestImageSpecificationRoundTrip(t *testing.T) {
	spec := ImageSpecification{
		Architecture: ArchitectureAmd64,
		OS:           OperatingSystemLinux,
		Config: &ImageConfig{
			User:       "root",
			Env:        map[string]string{"PATH": "/usr/bin"},
			Entrypoint: []string{"/bin/sh"},
		},
		Rootfs: &ImageRootfs{Type: "layers", DiffIDs: []string{"sha256:" + "0000000000000000000000000000000000000000000000000000000000000a"}},
	}

	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var roundTripped ImageSpecification
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if roundTripped.Config == nil || roundTripped.Config.Env["PATH"] != "/usr/bin" {
		t.Fatalf("Config did not round trip: %+v", roundTripped.Config)
	}
	if roundTripped.Rootfs == nil || len(roundTripped.Rootfs.DiffIDs) != 1 {
		t.Fatalf("Rootfs did not round trip: %+v", roundTripped.Rootfs)
	}
}
