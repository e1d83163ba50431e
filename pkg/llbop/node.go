// Package llbop is the LLB operation model: typed Source, Exec, File and
// Terminal operations that serialize to content-addressed protobuf nodes.
//
// The shape follows the original's operation/serialization split rather
// than a thin wrapper around a high-level LLB state builder: every
// operation owns its own serialize_head/serialize_tail pair, and a shared
// Context carries both a recursion chain (cycle detection) and a
// head-node memo (dedup across shared subgraphs), exactly as the source
// describes in its design notes.
package llbop

import (
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	digest "github.com/opencontainers/go-digest"

	"github.com/shmocker/wharf/internal/wharferrors"
)

// OperationID is a process-unique, monotonically assigned identifier used
// only for cycle detection and memoization. It never appears on the wire;
// wire-level identity is always the content digest of the serialized node.
type OperationID uint64

var nextOperationID uint64

// NewOperationID allocates the next process-unique id.
func NewOperationID() OperationID {
	return OperationID(atomic.AddUint64(&nextOperationID, 1))
}

// Node is one serialized protobuf operation plus its content digest and
// metadata, ready to be appended to a Definition.
type Node struct {
	Bytes    []byte
	Digest   digest.Digest
	Metadata OpMetadata
}

// OpMetadata mirrors the subset of pb.OpMetadata the frontend populates:
// a display name, ignore-cache flag, and the set of mount capabilities the
// operation actually exercises.
type OpMetadata struct {
	Description map[string]string
	Caps        map[string]bool
	IgnoreCache bool
}

// NewNode hashes encoded and wraps it with metadata. encoded must already
// be the final encoded protobuf bytes of a pb.Op.
func NewNode(encoded []byte, metadata OpMetadata) *Node {
	sum := sha256.Sum256(encoded)

	return &Node{
		Bytes:    encoded,
		Digest:   digest.NewDigestFromBytes(digest.SHA256, sum[:]),
		Metadata: metadata,
	}
}

// Output is the result of fully serializing an operation: its own head
// node plus every transitively referenced node (its tail).
type Output struct {
	Head *Node
	Tail []*Node
}

// All returns Tail followed by Head, the same post-order a Definition
// wants entries appended in (producers before consumers, deterministic by
// first-visit order).
func (o *Output) All() []*Node {
	all := make([]*Node, 0, len(o.Tail)+1)
	all = append(all, o.Tail...)
	all = append(all, o.Head)

	return all
}

// Operation is implemented by every LLB node kind (Source, Exec, File,
// Terminal).
type Operation interface {
	fmt.Stringer

	// ID returns this operation's process-unique identity.
	ID() OperationID

	// SerializeHead emits this operation's own protobuf node, without its
	// dependencies.
	SerializeHead(cx *Context) (*Node, error)

	// SerializeTail emits every node this operation transitively depends
	// on (but not its own head).
	SerializeTail(cx *Context) ([]*Node, error)
}

// Serialize drives cycle detection, memoized head computation, and tail
// collection for op, matching the original's Operation::serialize.
func Serialize(cx *Context, op Operation) (*Output, error) {
	var out *Output

	err := cx.enter(op.ID(), func() error {
		head, err := cx.reuse(op.ID(), func() (*Node, error) {
			return op.SerializeHead(cx)
		})
		if err != nil {
			return err
		}

		tail, err := op.SerializeTail(cx)
		if err != nil {
			return err
		}

		out = &Output{Head: head, Tail: tail}
		return nil
	})

	return out, err
}

// Context carries cycle-detection and memoization state across one
// serialization pass, shared by every operation reachable from a single
// Terminal.
type Context struct {
	chain []OperationID
	memo  map[OperationID]*Node
}

// NewContext returns an empty serialization context.
func NewContext() *Context {
	return &Context{memo: make(map[OperationID]*Node)}
}

func (cx *Context) enter(id OperationID, fn func() error) error {
	for _, seen := range cx.chain {
		if seen == id {
			return wharferrors.Wrap(wharferrors.GraphError, wharferrors.ErrCyclicGraph,
				"operation graph contains a cycle")
		}
	}

	cx.chain = append(cx.chain, id)
	defer func() { cx.chain = cx.chain[:len(cx.chain)-1] }()

	return fn()
}

func (cx *Context) reuse(id OperationID, fallback func() (*Node, error)) (*Node, error) {
	if node, ok := cx.memo[id]; ok {
		return node, nil
	}

	node, err := fallback()
	if err != nil {
		return nil, err
	}

	cx.memo[id] = node
	return node, nil
}
