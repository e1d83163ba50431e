package llbop

// MountKind discriminates the five mount variants the data model defines.
type MountKind int

const (
	// MountReadOnlyLayer mounts a producer's entire output layer read-only.
	MountReadOnlyLayer MountKind = iota

	// MountReadOnlySelector mounts only a specific subpath of a producer's
	// output layer, read-only.
	MountReadOnlySelector

	// MountLayer mounts a producer's output layer writable; the mount
	// itself produces a new layer at OutputIndex.
	MountLayer

	// MountScratch mounts an empty writable layer, producing a new layer
	// at OutputIndex.
	MountScratch

	// MountSharedCache mounts a daemon-managed cache keyed by path; two
	// concurrent execs mounting the same path may not run in parallel
	// (enforced by the daemon, not here).
	MountSharedCache
)

// Mount is one entry in an Exec's ordered mount list.
type Mount struct {
	Kind MountKind

	// Source is the producer output for ReadOnlyLayer, ReadOnlySelector
	// and Layer mounts. Zero value for Scratch and SharedCache.
	Source OperationOutput

	// Dest is the mount's destination path inside the exec's rootfs view.
	Dest string

	// Selector is the producer-relative subpath exposed for
	// MountReadOnlySelector; unused otherwise.
	Selector string

	// Output names the output index this mount produces for Layer and
	// Scratch mounts; unused (readonly) otherwise.
	Output OutputIndex

	// CachePath is the shared-cache key for MountSharedCache; unused
	// otherwise.
	CachePath string
}

// ReadOnlyLayer mounts source's whole output layer read-only at dest.
func ReadOnlyLayer(source OperationOutput, dest string) Mount {
	return Mount{Kind: MountReadOnlyLayer, Source: source, Dest: dest}
}

// ReadOnlySelector mounts only selector (a path inside source's output)
// read-only at dest.
func ReadOnlySelector(source OperationOutput, dest, selector string) Mount {
	return Mount{Kind: MountReadOnlySelector, Source: source, Dest: dest, Selector: selector}
}

// Layer mounts source's output layer writable at dest, producing a new
// layer at output.
func Layer(output OutputIndex, source OperationOutput, dest string) Mount {
	return Mount{Kind: MountLayer, Source: source, Dest: dest, Output: output}
}

// Scratch mounts an empty writable layer at dest, producing a new layer
// at output.
func Scratch(output OutputIndex, dest string) Mount {
	return Mount{Kind: MountScratch, Dest: dest, Output: output}
}

// SharedCacheMount mounts the daemon's shared cache keyed by path, at path.
func SharedCacheMount(path string) Mount {
	return Mount{Kind: MountSharedCache, Dest: path, CachePath: path}
}

// requiredCaps returns the capability flags this mount kind exercises, to
// be merged into the owning Exec's metadata.
func (m Mount) requiredCaps() map[string]bool {
	switch m.Kind {
	case MountReadOnlySelector:
		return map[string]bool{"exec.mount.bind": true, "exec.mount.selector": true}
	case MountSharedCache:
		return map[string]bool{"exec.mount.bind": true, "exec.mount.cachepersist": true}
	default:
		return map[string]bool{"exec.mount.bind": true}
	}
}

// isScratch reports whether this mount needs no external input index.
func (m Mount) isScratch() bool {
	return m.Kind == MountScratch || m.Kind == MountSharedCache
}
