// Package oci synthesizes the OCI image configuration the terminal
// composition step (C7) attaches to its solved output, and carries the
// small round-trippable value types (exposed ports, stop signals) the
// embedded wharf metadata schema uses. Its JSON wire format is the real
// OCI image-config spec: https://github.com/opencontainers/image-spec/blob/v1.1.1/config.md,
// via specs-go/v1 (see wire.go) rather than a hand-rolled mirror of it.
package oci

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ImageSpecification is the frontend's in-memory image-config model. Its
// shape favors the rest of the frontend's ergonomics (a map for Env, a
// slice of ExposedPort for ports) over mirroring the wire format
// field-for-field; MarshalJSON/UnmarshalJSON (wire.go) translate to and
// from the real specs-go/v1 structs at the boundary.
type ImageSpecification struct {
	Created      *time.Time
	Author       string
	Architecture Architecture
	OS           OperatingSystem
	Config       *ImageConfig
	Rootfs       *ImageRootfs
	History      []LayerHistory
}

type Architecture string

const (
	ArchitectureAmd64   Architecture = "amd64"
	ArchitectureArm64   Architecture = "arm64"
	ArchitectureArm     Architecture = "arm"
	Architecture386     Architecture = "386"
	ArchitecturePpc64le Architecture = "ppc64le"
	ArchitectureS390x   Architecture = "s390x"
)

type OperatingSystem string

const OperatingSystemLinux OperatingSystem = "linux"

// ImageConfig is the execution-parameters object nested under "config".
// Env is keyed by name rather than encoded as "NAME=VALUE" pairs because
// every caller in this frontend (merging a builder/output image's
// inherited environment with manifest overrides) wants lookup-by-key;
// the wire format's array-of-pairs shape is handled entirely by
// MarshalJSON/UnmarshalJSON.
type ImageConfig struct {
	User         string
	ExposedPorts []ExposedPort
	Env          map[string]string
	Entrypoint   []string
	Cmd          []string
	Volumes      []string
	WorkingDir   string
	Labels       map[string]string
	StopSignal   string
}

type ImageRootfs struct {
	Type    string
	DiffIDs []string
}

type LayerHistory struct {
	Created    *time.Time
	Author     string
	CreatedBy  string
	Comment    string
	EmptyLayer bool
}

// ExposedPort round-trips through the OCI "PORT/proto" string form (§8's
// testable property 7): "8080/tcp" <-> Tcp(8080), "8081/udp" <-> Udp(8081),
// "80" <-> Tcp(80) on parse.
type ExposedPort struct {
	Port  uint16
	Proto string // "tcp" or "udp"
}

func TCP(port uint16) ExposedPort { return ExposedPort{Port: port, Proto: "tcp"} }
func UDP(port uint16) ExposedPort { return ExposedPort{Port: port, Proto: "udp"} }

func (p ExposedPort) String() string {
	return fmt.Sprintf("%d/%s", p.Port, p.Proto)
}

// ParseExposedPort parses the OCI "PORT/proto" string form, defaulting to
// tcp when no suffix is present.
func ParseExposedPort(s string) (ExposedPort, error) {
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		portPart, proto := s[:idx], s[idx+1:]

		port, err := strconv.ParseUint(portPart, 10, 16)
		if err != nil {
			return ExposedPort{}, errors.Wrapf(err, "invalid exposed port %q", s)
		}

		switch proto {
		case "tcp":
			return TCP(uint16(port)), nil
		case "udp":
			return UDP(uint16(port)), nil
		default:
			return ExposedPort{}, errors.Errorf("unknown port protocol %q in %q", proto, s)
		}
	}

	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return ExposedPort{}, errors.Wrapf(err, "invalid exposed port %q", s)
	}

	return TCP(uint16(port)), nil
}

func (p ExposedPort) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *ExposedPort) UnmarshalText(text []byte) error {
	parsed, err := ParseExposedPort(string(text))
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}

// Signal is a stop-signal name, as set by `output.stop-signal` in the
// wharf metadata schema. The constants below are the POSIX names; a
// value outside them is not rejected when decoded.
type Signal string

const (
	SIGHUP    Signal = "SIGHUP"
	SIGINT    Signal = "SIGINT"
	SIGQUIT   Signal = "SIGQUIT"
	SIGILL    Signal = "SIGILL"
	SIGTRAP   Signal = "SIGTRAP"
	SIGABRT   Signal = "SIGABRT"
	SIGBUS    Signal = "SIGBUS"
	SIGFPE    Signal = "SIGFPE"
	SIGKILL   Signal = "SIGKILL"
	SIGUSR1   Signal = "SIGUSR1"
	SIGSEGV   Signal = "SIGSEGV"
	SIGUSR2   Signal = "SIGUSR2"
	SIGPIPE   Signal = "SIGPIPE"
	SIGALRM   Signal = "SIGALRM"
	SIGTERM   Signal = "SIGTERM"
	SIGSTKFLT Signal = "SIGSTKFLT"
	SIGCHLD   Signal = "SIGCHLD"
	SIGCONT   Signal = "SIGCONT"
	SIGSTOP   Signal = "SIGSTOP"
	SIGTSTP   Signal = "SIGTSTP"
	SIGTTIN   Signal = "SIGTTIN"
	SIGTTOU   Signal = "SIGTTOU"
	SIGURG    Signal = "SIGURG"
	SIGXCPU   Signal = "SIGXCPU"
	SIGXFSZ   Signal = "SIGXFSZ"
	SIGVTALRM Signal = "SIGVTALRM"
	SIGPROF   Signal = "SIGPROF"
	SIGWINCH  Signal = "SIGWINCH"
	SIGIO     Signal = "SIGIO"
	SIGPWR    Signal = "SIGPWR"
	SIGSYS    Signal = "SIGSYS"
	SIGEMT    Signal = "SIGEMT"
	SIGINFO   Signal = "SIGINFO"
)
