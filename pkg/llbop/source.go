package llbop

import (
	"fmt"

	"github.com/moby/buildkit/solver/pb"
)

// SourceScheme is the URI scheme identifying a leaf Source's external
// content.
type SourceScheme int

const (
	SchemeDockerImage SourceScheme = iota
	SchemeGit
	SchemeLocal
)

// ResolveMode mirrors the original's image resolve-mode attribute.
type ResolveMode int

const (
	ResolveModeDefault ResolveMode = iota
	ResolveModePreferLocal
	ResolveModeForcePull
)

// Source is an immutable leaf operation identifying external content.
type Source struct {
	id OperationID

	scheme SourceScheme
	name   string // image ref, git URL, or local context name
	digest string // pinned content digest, if any

	resolveMode ResolveMode
	include     []string
	exclude     []string

	customName  string
	ignoreCache bool
}

// Image builds a docker-image:// source for ref.
func Image(ref string) *Source {
	return &Source{id: NewOperationID(), scheme: SchemeDockerImage, name: ref}
}

// Git builds a git:// source for url.
func Git(url string) *Source {
	return &Source{id: NewOperationID(), scheme: SchemeGit, name: url}
}

// Local builds a local:// source named name (a build-context handle).
func Local(name string) *Source {
	return &Source{id: NewOperationID(), scheme: SchemeLocal, name: name}
}

// WithDigest pins the source to a specific content digest.
func (s *Source) WithDigest(d string) *Source {
	s.digest = d
	return s
}

// WithResolveMode sets the image resolve-mode attribute.
func (s *Source) WithResolveMode(mode ResolveMode) *Source {
	s.resolveMode = mode
	return s
}

// AddIncludePattern adds a local-source include glob.
func (s *Source) AddIncludePattern(pattern string) *Source {
	s.include = append(s.include, pattern)
	return s
}

// AddExcludePattern adds a local-source exclude glob.
func (s *Source) AddExcludePattern(pattern string) *Source {
	s.exclude = append(s.exclude, pattern)
	return s
}

// CustomName sets the operation's display name.
func (s *Source) CustomName(name string) *Source {
	s.customName = name
	return s
}

// IgnoreCache marks this source as always re-resolved.
func (s *Source) IgnoreCache(ignore bool) *Source {
	s.ignoreCache = ignore
	return s
}

// Identifier returns the URI the daemon resolves this source through.
func (s *Source) Identifier() string {
	switch s.scheme {
	case SchemeDockerImage:
		ref := s.name
		if s.digest != "" {
			ref = ref + "@" + s.digest
		}
		return "docker-image://" + ref
	case SchemeGit:
		return "git://" + s.name
	case SchemeLocal:
		return "local://" + s.name
	default:
		return ""
	}
}

// Output returns a handle to this source's single output.
func (s *Source) Output() OperationOutput {
	return Out(s, 0)
}

func (s *Source) ID() OperationID { return s.id }

func (s *Source) String() string {
	if s.customName != "" {
		return s.customName
	}
	return fmt.Sprintf("source: %s", s.Identifier())
}

func (s *Source) attrs() map[string]string {
	attrs := map[string]string{}

	switch s.resolveMode {
	case ResolveModePreferLocal:
		attrs["image.resolvemode"] = "preferlocal"
	case ResolveModeForcePull:
		attrs["image.resolvemode"] = "pull"
	}

	for i, pattern := range s.include {
		attrs[fmt.Sprintf("local.includepattern.%d", i)] = pattern
	}

	for i, pattern := range s.exclude {
		attrs[fmt.Sprintf("local.excludepattern.%d", i)] = pattern
	}

	return attrs
}

func (s *Source) SerializeHead(cx *Context) (*Node, error) {
	op := &pb.Op{
		Op: &pb.Op_Source{
			Source: &pb.SourceOp{
				Identifier: s.Identifier(),
				Attrs:      s.attrs(),
			},
		},
	}

	encoded, err := op.Marshal()
	if err != nil {
		return nil, err
	}

	caps := map[string]bool{}
	if len(s.include) > 0 || len(s.exclude) > 0 {
		caps["source.local.includepatterns"] = true
		caps["source.local.excludepatterns"] = true
	}

	return NewNode(encoded, OpMetadata{
		Description: map[string]string{"llb.customname": s.customName},
		Caps:        caps,
		IgnoreCache: s.ignoreCache,
	}), nil
}

func (s *Source) SerializeTail(cx *Context) ([]*Node, error) {
	return nil, nil
}
