// Package preview tracks the rendered artifact shown for the active document.
package preview

import (
	"context"
	"sync"
)

// Resolver finds an already rendered artifact for a document.
// It returns ok=false when no artifact exists.
type Resolver interface {
	ResolvePreview(ctx context.Context, path string) (artifact string, ok bool, err error)
}

// Renderer produces a fresh artifact for a document.
type Renderer interface {
	RenderPreview(ctx context.Context, path string) (string, error)
}

// State is a snapshot of the coordinator.
type State struct {
	Artifact  string `json:"artifact,omitempty"`
	Resolving bool   `json:"resolving"`
	Rendering bool   `json:"rendering"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSequencing makes the coordinator accept a completion only when it
// belongs to the most recently started call. Without it the last call to
// complete wins.
func WithSequencing() Option {
	return func(c *Coordinator) {
		c.sequenced = true
	}
}

// WithOnChange registers a callback run after every state change. It is
// called without internal locks held.
func WithOnChange(fn func(State)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// Coordinator owns the artifact reference. Resolve and Render may overlap;
// they are not ordered against each other.
type Coordinator struct {
	resolver  Resolver
	renderer  Renderer
	sequenced bool
	onChange  func(State)

	mu        sync.Mutex
	artifact  string
	resolving int
	rendering int
	seq       uint64
}

// New creates a coordinator over the given collaborators.
func New(resolver Resolver, renderer Renderer, opts ...Option) *Coordinator {
	c := &Coordinator{resolver: resolver, renderer: renderer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve looks up the existing artifact for path and stores it. An empty
// path clears the reference without calling the resolver. Errors leave the
// reference untouched.
func (c *Coordinator) Resolve(ctx context.Context, path string) (string, error) {
	if path == "" {
		c.Clear()
		return "", nil
	}

	c.mu.Lock()
	c.resolving++
	id := c.next()
	c.mu.Unlock()
	c.notify()

	artifact, ok, err := c.resolver.ResolvePreview(ctx, path)

	c.mu.Lock()
	c.resolving--
	if err == nil {
		if !ok {
			artifact = ""
		}
		c.apply(id, artifact)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return "", err
	}
	return artifact, nil
}

// Render produces a new artifact for path and stores it on success,
// regardless of any resolve still in flight.
func (c *Coordinator) Render(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	c.rendering++
	id := c.next()
	c.mu.Unlock()
	c.notify()

	artifact, err := c.renderer.RenderPreview(ctx, path)

	c.mu.Lock()
	c.rendering--
	if err == nil {
		c.apply(id, artifact)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return "", err
	}
	return artifact, nil
}

// Clear drops the artifact reference immediately.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.artifact = ""
	c.seq++
	c.mu.Unlock()
	c.notify()
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) next() uint64 {
	c.seq++
	return c.seq
}

func (c *Coordinator) apply(id uint64, artifact string) {
	if c.sequenced && id != c.seq {
		return
	}
	c.artifact = artifact
}

func (c *Coordinator) stateLocked() State {
	return State{
		Artifact:  c.artifact,
		Resolving: c.resolving > 0,
		Rendering: c.rendering > 0,
	}
}

func (c *Coordinator) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}
