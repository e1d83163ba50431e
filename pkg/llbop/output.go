package llbop

// OutputIndex names one of an operation's numbered outputs. Indices are
// dense from zero per the operation model's invariant.
type OutputIndex int64

// OperationOutput is a handle to one specific output of a producer
// operation: the `(Operation, OutputIndex)` pair every Mount and Input
// references. Go's garbage collector makes the source's Borrowed/Shared
// split unnecessary — a single handle type works uniformly for every
// consumer, whether the producer is used once or shared across many
// mounts (see DESIGN.md's note on this).
type OperationOutput struct {
	Op    Operation
	Index OutputIndex
}

// Out is shorthand for constructing an OperationOutput.
func Out(op Operation, index OutputIndex) OperationOutput {
	return OperationOutput{Op: op, Index: index}
}
