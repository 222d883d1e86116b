package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	simerrors "github.com/wippyai/simbridge/errors"
)

// DefaultHeapStart is the first offset the bridge allocates from. The range
// below it belongs to the module's static data.
const DefaultHeapStart = 1024

// Extension registers additional host modules before the engine module is
// instantiated.
type Extension interface {
	Register(ctx context.Context, r wazero.Runtime, host *Host) error
}

// Config holds configuration for module loading
type Config struct {
	// Fetcher retrieves module bytes. Defaults to DefaultFetcher.
	Fetcher Fetcher

	// Random is the secure source behind getrandom_fill. Defaults to crypto/rand.
	Random io.Reader

	// HeapStart is where bridge allocations begin. 0 means DefaultHeapStart.
	HeapStart uint32

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// RequiredExports lists entry points that must exist at load time.
	RequiredExports []string

	// Extensions register extra host modules.
	Extensions []Extension
}

type loadCall struct {
	done chan struct{}
	mod  *Module
	err  error
}

// Loader loads each module location at most once.
type Loader struct {
	cfg   Config
	mu    sync.Mutex
	loads map[string]*loadCall
}

// NewLoader creates a loader.
func NewLoader(cfg Config) *Loader {
	if cfg.Fetcher == nil {
		cfg.Fetcher = &DefaultFetcher{}
	}
	if cfg.HeapStart == 0 {
		cfg.HeapStart = DefaultHeapStart
	}
	return &Loader{cfg: cfg, loads: make(map[string]*loadCall)}
}

// Load returns the module for location, instantiating it on first use.
// Callers arriving while a load is in flight wait for that load. A failed
// load is cached and returned to later callers, except when the failure was
// the first caller's context ending.
func (l *Loader) Load(ctx context.Context, location string) (*Module, error) {
	l.mu.Lock()
	if c, ok := l.loads[location]; ok {
		l.mu.Unlock()
		select {
		case <-c.done:
			return c.mod, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &loadCall{done: make(chan struct{})}
	l.loads[location] = c
	l.mu.Unlock()

	c.mod, c.err = l.instantiate(ctx, location)
	if c.err != nil && (errors.Is(c.err, context.Canceled) || errors.Is(c.err, context.DeadlineExceeded)) {
		l.mu.Lock()
		delete(l.loads, location)
		l.mu.Unlock()
	}
	close(c.done)
	return c.mod, c.err
}

// Close closes every module this loader instantiated.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	loads := l.loads
	l.loads = make(map[string]*loadCall)
	l.mu.Unlock()

	var err error
	for _, c := range loads {
		<-c.done
		if c.mod != nil {
			err = multierr.Append(err, c.mod.Close(ctx))
		}
	}
	return err
}

func (l *Loader) instantiate(ctx context.Context, location string) (*Module, error) {
	start := time.Now()

	data, err := l.cfg.Fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, simerrors.Load("fetch "+location, err)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if l.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(l.cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	fail := func(detail string, err error) (*Module, error) {
		_ = r.Close(ctx)
		if se, ok := err.(*simerrors.Error); ok {
			return nil, se
		}
		return nil, simerrors.Load(detail, err)
	}

	host := NewHost(l.cfg.Random)
	if err := host.register(ctx, r); err != nil {
		return fail("register host module", err)
	}
	for _, ext := range l.cfg.Extensions {
		if err := ext.Register(ctx, r, host); err != nil {
			return fail("register extension", err)
		}
	}

	compiled, err := r.CompileModule(ctx, data)
	if err != nil {
		return fail("compile module", err)
	}
	inst, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return fail("instantiate module", err)
	}

	mem := inst.ExportedMemory(MemoryExport)
	if mem == nil {
		return fail("", simerrors.MissingExport(MemoryExport))
	}
	for _, name := range l.cfg.RequiredExports {
		if inst.ExportedFunction(name) == nil {
			return fail("", simerrors.MissingExport(name))
		}
	}

	Logger().Info("engine module loaded",
		zap.String("location", location),
		zap.Int("bytes", len(data)),
		zap.Uint32("memory", mem.Size()),
		zap.Duration("elapsed", time.Since(start)))

	return &Module{
		location:  location,
		runtime:   r,
		inst:      inst,
		mem:       WrapMemory(mem),
		host:      host,
		heapStart: l.cfg.HeapStart,
	}, nil
}

// Module is an instantiated engine module.
// Calls must not overlap; the caller serializes them.
type Module struct {
	location  string
	runtime   wazero.Runtime
	inst      api.Module
	mem       *Memory
	host      *Host
	heapStart uint32
}

// Location returns where the module was loaded from.
func (m *Module) Location() string { return m.location }

// Memory returns the exported linear memory.
func (m *Module) Memory() *Memory { return m.mem }

// Host returns the host callbacks bound to this module.
func (m *Module) Host() *Host { return m.host }

// HeapStart returns the first offset available to the bridge allocator.
func (m *Module) HeapStart() uint32 { return m.heapStart }

// HasExport reports whether the module exports function name.
func (m *Module) HasExport(name string) bool {
	return m.inst.ExportedFunction(name) != nil
}

// Call invokes an entry point returning a single i32.
func (m *Module) Call(ctx context.Context, name string, params ...uint64) (int32, error) {
	fn := m.inst.ExportedFunction(name)
	if fn == nil {
		return 0, simerrors.MissingExport(name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, simerrors.New(simerrors.PhaseCall, simerrors.KindModuleFailure).
			Export(name).
			Detail("call trapped").
			Cause(err).
			Build()
	}
	if len(results) != 1 {
		return 0, simerrors.New(simerrors.PhaseCall, simerrors.KindProtocol).
			Export(name).
			Detail("expected 1 result, got %d", len(results)).
			Build()
	}
	return api.DecodeI32(results[0]), nil
}

// Close releases the module and its runtime.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
