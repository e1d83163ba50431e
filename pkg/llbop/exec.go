package llbop

import (
	"sort"

	"github.com/moby/buildkit/solver/pb"
)

// Command is an exec operation: the program, its arguments, environment,
// working directory and mount list a single rustc/build-script/helper
// invocation needs.
type Command struct {
	id OperationID

	program string
	args    []string
	env     []string // "KEY=VALUE", in append order (each EnvIter batch sorted by key)
	cwd     string
	user    string

	mounts []Mount

	customName  string
	ignoreCache bool
}

// Run starts building a Command invoking program.
func Run(program string) *Command {
	return &Command{id: NewOperationID(), program: program, cwd: "/"}
}

// Args sets the command's argv (excluding argv[0], which is Program).
func (c *Command) Args(args ...string) *Command {
	c.args = append([]string(nil), args...)
	return c
}

// Env appends a single KEY=VALUE environment entry.
func (c *Command) Env(key, value string) *Command {
	c.env = append(c.env, key+"="+value)
	return c
}

// EnvIter appends every entry of an ordered key/value sequence, keeping
// Cargo's environment-ordering requirement (stable digests) by sorting on
// append.
func (c *Command) EnvIter(pairs map[string]string) *Command {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		c.Env(k, pairs[k])
	}

	return c
}

// Cwd sets the working directory.
func (c *Command) Cwd(path string) *Command {
	c.cwd = path
	return c
}

// User sets the process user.
func (c *Command) User(user string) *Command {
	c.user = user
	return c
}

// Mount appends one mount, declaration order preserved (it determines
// input-index assignment at serialization time).
func (c *Command) Mount(m Mount) *Command {
	c.mounts = append(c.mounts, m)
	return c
}

// CustomName sets the operation's human-readable display name.
func (c *Command) CustomName(name string) *Command {
	c.customName = name
	return c
}

// IgnoreCache marks this operation to bypass the daemon's cache.
func (c *Command) IgnoreCache(ignore bool) *Command {
	c.ignoreCache = ignore
	return c
}

// Output returns a handle to this command's numbered output.
func (c *Command) Output(index OutputIndex) OperationOutput {
	return Out(c, index)
}

func (c *Command) ID() OperationID { return c.id }

func (c *Command) String() string {
	if c.customName != "" {
		return c.customName
	}

	return "exec: " + c.program
}

func (c *Command) SerializeHead(cx *Context) (*Node, error) {
	pbMounts := make([]*pb.Mount, 0, len(c.mounts))
	inputs := make([]*pb.Input, 0, len(c.mounts))
	caps := map[string]bool{}

	var lastInputIndex int64

	for _, m := range c.mounts {
		for k := range m.requiredCaps() {
			caps[k] = true
		}

		if m.isScratch() {
			pbMount := &pb.Mount{
				Input:  -1,
				Dest:   m.Dest,
				Output: pb.OutputIndex(m.Output),
			}
			if m.Kind == MountSharedCache {
				pbMount.Output = -1
				pbMount.MountType = pb.MountType_CACHE
				pbMount.CacheOpt = &pb.CacheOpt{ID: m.CachePath, Sharing: pb.CacheSharingOpt_SHARED}
			}
			pbMounts = append(pbMounts, pbMount)
			continue
		}

		producerOut, err := Serialize(cx, m.Source.Op)
		if err != nil {
			return nil, err
		}

		inputIndex := lastInputIndex
		lastInputIndex++

		inputs = append(inputs, &pb.Input{
			Digest: producerOut.Head.Digest,
			Index:  pb.OutputIndex(m.Source.Index),
		})

		switch m.Kind {
		case MountReadOnlyLayer:
			pbMounts = append(pbMounts, &pb.Mount{
				Input:    pb.InputIndex(inputIndex),
				Dest:     m.Dest,
				Output:   -1,
				Readonly: true,
			})
		case MountReadOnlySelector:
			pbMounts = append(pbMounts, &pb.Mount{
				Input:    pb.InputIndex(inputIndex),
				Dest:     m.Dest,
				Output:   -1,
				Readonly: true,
				Selector: m.Selector,
			})
		case MountLayer:
			pbMounts = append(pbMounts, &pb.Mount{
				Input:  pb.InputIndex(inputIndex),
				Dest:   m.Dest,
				Output: pb.OutputIndex(m.Output),
			})
		}
	}

	meta := &pb.Meta{
		Args: append([]string{c.program}, c.args...),
		Env:  c.env,
		Cwd:  c.cwd,
		User: c.user,
	}

	op := &pb.Op{
		Op: &pb.Op_Exec{
			Exec: &pb.ExecOp{
				Meta:     meta,
				Mounts:   pbMounts,
				Network:  pb.NetMode_UNSET,
				Security: pb.SecurityMode_SANDBOX,
			},
		},
		Inputs: inputs,
	}

	encoded, err := op.Marshal()
	if err != nil {
		return nil, err
	}

	return NewNode(encoded, OpMetadata{
		Description: map[string]string{"llb.customname": c.customName},
		Caps:        caps,
		IgnoreCache: c.ignoreCache,
	}), nil
}

func (c *Command) SerializeTail(cx *Context) ([]*Node, error) {
	var tail []*Node

	for _, m := range c.mounts {
		if m.isScratch() {
			continue
		}

		out, err := Serialize(cx, m.Source.Op)
		if err != nil {
			return nil, err
		}

		tail = append(tail, out.All()...)
	}

	return tail, nil
}
