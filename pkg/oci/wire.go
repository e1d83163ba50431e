package oci

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// imageWire is ImageSpecification's wire shape: specs-go/v1's own Image
// struct, except Config/RootFS/History are pointers/omittable so a
// config resolved without one of them round-trips without inventing an
// empty object, matching the original's `#[serde(skip_serializing_if =
// "Option::is_none")]` fields.
type imageWire struct {
	Created *time.Time `json:"created,omitempty"`
	Author  string     `json:"author,omitempty"`
	ocispec.Platform
	Config  *ocispec.ImageConfig `json:"config,omitempty"`
	RootFS  *ocispec.RootFS      `json:"rootfs,omitempty"`
	History []ocispec.History    `json:"history,omitempty"`
}

// MarshalJSON renders the image spec as a real OCI image-config
// document via specs-go/v1, rather than this package's map/slice-
// shaped in-memory form.
func (s ImageSpecification) MarshalJSON() ([]byte, error) {
	wire := imageWire{
		Created: s.Created,
		Author:  s.Author,
		Platform: ocispec.Platform{
			Architecture: string(s.Architecture),
			OS:           string(s.OS),
		},
	}

	if s.Config != nil {
		cfg := s.Config.toWire()
		wire.Config = &cfg
	}

	if s.Rootfs != nil {
		rootfs := ocispec.RootFS{Type: s.Rootfs.Type}
		for _, id := range s.Rootfs.DiffIDs {
			rootfs.DiffIDs = append(rootfs.DiffIDs, digest.Digest(id))
		}
		wire.RootFS = &rootfs
	}

	for _, h := range s.History {
		wire.History = append(wire.History, ocispec.History{
			Created:    h.Created,
			Author:     h.Author,
			CreatedBy:  h.CreatedBy,
			Comment:    h.Comment,
			EmptyLayer: h.EmptyLayer,
		})
	}

	return json.Marshal(wire)
}

// UnmarshalJSON reads a real OCI image-config document (exactly what
// BuildKit's ResolveImageConfig RPC returns) into this package's
// in-memory form.
func (s *ImageSpecification) UnmarshalJSON(data []byte) error {
	var wire imageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*s = ImageSpecification{
		Created:      wire.Created,
		Author:       wire.Author,
		Architecture: Architecture(wire.Architecture),
		OS:           OperatingSystem(wire.OS),
	}

	if wire.Config != nil {
		cfg, err := imageConfigFromWire(*wire.Config)
		if err != nil {
			return err
		}
		s.Config = &cfg
	}

	if wire.RootFS != nil {
		rootfs := ImageRootfs{Type: wire.RootFS.Type}
		for _, id := range wire.RootFS.DiffIDs {
			rootfs.DiffIDs = append(rootfs.DiffIDs, id.String())
		}
		s.Rootfs = &rootfs
	}

	for _, h := range wire.History {
		s.History = append(s.History, LayerHistory{
			Created:    h.Created,
			Author:     h.Author,
			CreatedBy:  h.CreatedBy,
			Comment:    h.Comment,
			EmptyLayer: h.EmptyLayer,
		})
	}

	return nil
}

// toWire translates an ImageConfig to specs-go/v1's ImageConfig: Env
// becomes a sorted "NAME=VALUE" slice (the wire format BuildKit itself
// both produces and expects) instead of this package's map, and
// ExposedPorts/Volumes become sets keyed by their string form, matching
// what a Go-built OCI image config writer (BuildKit included) emits.
func (c ImageConfig) toWire() ocispec.ImageConfig {
	wire := ocispec.ImageConfig{
		User:       c.User,
		Entrypoint: c.Entrypoint,
		Cmd:        c.Cmd,
		WorkingDir: c.WorkingDir,
		Labels:     c.Labels,
		StopSignal: c.StopSignal,
	}

	if len(c.Env) > 0 {
		wire.Env = make([]string, 0, len(c.Env))
		for k, v := range c.Env {
			wire.Env = append(wire.Env, k+"="+v)
		}
		sort.Strings(wire.Env)
	}

	if len(c.ExposedPorts) > 0 {
		wire.ExposedPorts = make(map[string]struct{}, len(c.ExposedPorts))
		for _, p := range c.ExposedPorts {
			wire.ExposedPorts[p.String()] = struct{}{}
		}
	}

	if len(c.Volumes) > 0 {
		wire.Volumes = make(map[string]struct{}, len(c.Volumes))
		for _, v := range c.Volumes {
			wire.Volumes[v] = struct{}{}
		}
	}

	return wire
}

// imageConfigFromWire is toWire's inverse. Env's "NAME=VALUE" pairs
// (a JSON array on the wire, never an object) are split back into a
// map; a pair with no "=" is rejected rather than silently dropped.
func imageConfigFromWire(w ocispec.ImageConfig) (ImageConfig, error) {
	c := ImageConfig{
		User:       w.User,
		Entrypoint: w.Entrypoint,
		Cmd:        w.Cmd,
		WorkingDir: w.WorkingDir,
		Labels:     w.Labels,
		StopSignal: w.StopSignal,
	}

	if len(w.Env) > 0 {
		c.Env = make(map[string]string, len(w.Env))
		for _, pair := range w.Env {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return ImageConfig{}, errors.Errorf("malformed Env entry %q, expected NAME=VALUE", pair)
			}
			c.Env[key] = value
		}
	}

	for key := range w.ExposedPorts {
		port, err := ParseExposedPort(key)
		if err != nil {
			return ImageConfig{}, err
		}
		c.ExposedPorts = append(c.ExposedPorts, port)
	}

	for key := range w.Volumes {
		c.Volumes = append(c.Volumes, key)
	}

	return c, nil
}

// MarshalJSON gives ImageConfig the same real wire format on its own
// (e.g. when only the config object is serialized, not a full image
// spec), delegating to the same specs-go/v1 bridge.
func (c ImageConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.toWire())
}

// UnmarshalJSON is MarshalJSON's inverse.
func (c *ImageConfig) UnmarshalJSON(data []byte) error {
	var wire ocispec.ImageConfig
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	parsed, err := imageConfigFromWire(wire)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}
