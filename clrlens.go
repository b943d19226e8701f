// ABOUTME: Root package: version and the attach session tying the core together
// ABOUTME: A session owns target, provider, resolver and the current heap

// Package clrlens inspects the managed heap of a paused .NET target:
// segments and generations, GC roots, type and field layout, and the
// tree of live objects reachable from the roots.
package clrlens

import (
	"fmt"
	"io"

	"github.com/go-kit/log"

	"github.com/clrlens/clrlens/clrheap"
	"github.com/clrlens/clrlens/dac"
	_ "github.com/clrlens/clrlens/dumpfile" // register the snapshot backend
	"github.com/clrlens/clrlens/gcroot"
	"github.com/clrlens/clrlens/objgraph"
	"github.com/clrlens/clrlens/target"
	"github.com/clrlens/clrlens/typesys"
)

// Version is the semantic version of the clrlens library.
const Version = "0.1.0-dev"

// Session is one attach to one target. It owns the resolver cache and
// the current heap snapshot; both are tied to the target's revision and
// rebuilt when it moves. All state lives here, never in package
// globals, so concurrent sessions against different targets do not
// interfere.
type Session struct {
	reader   target.Reader
	provider dac.Provider
	resolver *typesys.Resolver
	logger   log.Logger
	filter   *objgraph.FilterConfig

	heap *clrheap.Heap
}

// NewSession attaches over an already-constructed reader and provider.
// logger and filter may be nil for defaults.
func NewSession(reader target.Reader, provider dac.Provider, logger log.Logger, filter *objgraph.FilterConfig) *Session {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if filter == nil {
		filter = objgraph.DefaultFilterConfig()
	}
	return &Session{
		reader:   reader,
		provider: provider,
		resolver: typesys.NewResolver(provider, reader),
		logger:   logger,
		filter:   filter,
	}
}

// Open attaches to a snapshot stream via the backend registry.
func Open(r io.Reader, logger log.Logger, filter *objgraph.FilterConfig) (*Session, error) {
	reader, meta, err := target.Open(r)
	if err != nil {
		return nil, err
	}
	provider, ok := meta.(dac.Provider)
	if !ok {
		return nil, fmt.Errorf("backend did not supply runtime metadata (got %T)", meta)
	}
	return NewSession(reader, provider, logger, filter), nil
}

// OpenFile attaches to a snapshot file on disk.
func OpenFile(path string, logger log.Logger, filter *objgraph.FilterConfig) (*Session, error) {
	reader, meta, err := target.OpenFile(path)
	if err != nil {
		return nil, err
	}
	provider, ok := meta.(dac.Provider)
	if !ok {
		return nil, fmt.Errorf("backend did not supply runtime metadata (got %T)", meta)
	}
	return NewSession(reader, provider, logger, filter), nil
}

// Reader returns the session's memory reader.
func (s *Session) Reader() target.Reader { return s.reader }

// Provider returns the session's metadata provider.
func (s *Session) Provider() dac.Provider { return s.provider }

// Resolver returns the session's type resolver.
func (s *Session) Resolver() *typesys.Resolver { return s.resolver }

// Heap returns a heap bound to the target's current revision. A heap
// from an earlier revision is discarded and rebuilt, and the resolver
// cache is invalidated with it; handing out stale segments would let
// callers read through moved objects.
func (s *Session) Heap() (*clrheap.Heap, error) {
	if s.heap != nil && s.heap.Revision() == s.provider.Revision() {
		return s.heap, nil
	}
	return s.rebuild()
}

// Refresh unconditionally rebuilds the heap and invalidates the
// resolver cache. Call after resuming and re-pausing the target.
func (s *Session) Refresh() error {
	_, err := s.rebuild()
	return err
}

func (s *Session) rebuild() (*clrheap.Heap, error) {
	s.resolver.Invalidate()
	h, err := clrheap.NewHeap(s.provider, s.reader, s.resolver, s.logger)
	if err != nil {
		return nil, err
	}
	s.heap = h
	return h, nil
}

// NewCollector wires an object-graph collector over the current heap.
func (s *Session) NewCollector() (*objgraph.Collector, error) {
	h, err := s.Heap()
	if err != nil {
		return nil, err
	}
	enum := gcroot.NewEnumerator(s.provider, h)
	return objgraph.NewCollector(h, s.resolver, s.reader, enum, s.filter, s.logger), nil
}

// EnumerateObjects runs one collection pass: the tree of live objects
// reachable from the filtered roots.
func (s *Session) EnumerateObjects() ([]*objgraph.Node, error) {
	c, err := s.NewCollector()
	if err != nil {
		return nil, err
	}
	return c.EnumerateObjects()
}
