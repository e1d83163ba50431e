// Package wharferrors defines the frontend's fixed error taxonomy and its
// mapping onto gRPC status codes, per the error handling design.
package wharferrors

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
)

// Kind classifies a frontend failure into one of the six buckets the
// bridge's return RPC can report back to the daemon.
type Kind int

const (
	// ConfigError covers duplicate/missing wharf metadata sections, bad
	// JSON, or a CARGO_HOME that could not be derived or guessed.
	ConfigError Kind = iota

	// BridgeError covers any failed round trip over the gateway-client
	// channel (solve, read_file, resolve_image_config, return).
	BridgeError

	// PlanError covers a non-zero exit or unparseable JSON from the
	// external build-plan producer.
	PlanError

	// GraphError covers UnmatchedBuildScript and CyclicGraph.
	GraphError

	// NoOutputs covers a terminal composition that found nothing to copy.
	NoOutputs

	// SerializationError covers an internal invariant violation while
	// emitting LLB.
	SerializationError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case BridgeError:
		return "BridgeError"
	case PlanError:
		return "PlanError"
	case GraphError:
		return "GraphError"
	case NoOutputs:
		return "NoOutputs"
	case SerializationError:
		return "SerializationError"
	default:
		return "UnknownError"
	}
}

// Code returns the gRPC status code the return RPC must report for errors
// of this kind.
func (k Kind) Code() codes.Code {
	switch k {
	case ConfigError:
		return codes.InvalidArgument
	case BridgeError:
		return codes.Unknown
	case PlanError:
		return codes.Unknown
	case GraphError:
		return codes.FailedPrecondition
	case NoOutputs:
		return codes.FailedPrecondition
	case SerializationError:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is a typed frontend failure carrying its Kind and a cause chain.
// Rendering it produces "<msg> => caused by: <cause> => ..." as required
// by the error handling design.
type Error struct {
	Kind Kind
	msg  string
	// cause is the wrapped error chain: set by Wrap/Wrapf, nil for New/Newf.
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}

	return fmt.Sprintf("%s => caused by: %s", e.msg, causesChain(e.cause))
}

func (e *Error) Unwrap() error {
	return e.cause
}

// causesChain renders err and every error reachable through Unwrap as a
// "=>"-joined single line.
func causesChain(err error) string {
	out := err.Error()

	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}

		out += " => caused by: " + next.Error()
		err = next
	}

	return out
}

// New builds a bare Error of the given kind with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind and a message to an existing cause, preserving the
// cause's own chain so the final rendering includes every hop.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to SerializationError for unclassified failures —
// an unclassified error reaching the bridge boundary is itself an
// invariant violation.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}

	return SerializationError
}

// Unmatched build script and cyclic graph are the two GraphError flavors
// named explicitly in the error handling design; keep them as sentinels so
// callers can errors.Is against them after wrapping.
var (
	ErrUnmatchedBuildScript = errors.New("build script has no matching compile invocation in the plan")
	ErrCyclicGraph          = errors.New("operation graph contains a cycle")
)
