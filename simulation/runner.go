// Package simulation resolves simulation requests against an engine module.
//
// A Runner owns one engine module instance and the bump allocator over its
// memory. Each request is encoded into fresh memory, the entry point is
// called with an optional progress listener installed for the duration of
// the call, and the records it produced are decoded into a result.
package simulation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/simbridge/arena"
	"github.com/wippyai/simbridge/codec"
	"github.com/wippyai/simbridge/engine"
	simerrors "github.com/wippyai/simbridge/errors"
	"github.com/wippyai/simbridge/refengine"
)

// Config holds configuration for a Runner.
type Config struct {
	// Engine configures module loading.
	Engine engine.Config

	// Seeds supplies a seed for requests without one. Defaults to a
	// crypto/rand draw.
	Seeds func() uint64
}

// Runner executes simulations one at a time against a single module.
type Runner struct {
	location string
	loader   *engine.Loader
	seeds    func() uint64

	mu    sync.Mutex
	mod   *engine.Module
	arena *arena.Arena
}

// NewRunner creates a runner for the module at location. The module is
// loaded on first use. refengine.Location selects the reference engine.
func NewRunner(location string, cfg Config) *Runner {
	ecfg := cfg.Engine
	if location == refengine.Location {
		ecfg = refengine.Configure(ecfg)
	}
	seeds := cfg.Seeds
	if seeds == nil {
		seeds = engine.NewHost(nil).Uint64
	}
	return &Runner{
		location: location,
		loader:   engine.NewLoader(ecfg),
		seeds:    seeds,
	}
}

// Location returns the module location.
func (r *Runner) Location() string { return r.location }

// Warm loads the module ahead of the first request.
func (r *Runner) Warm(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _, err := r.module(ctx)
	return err
}

func (r *Runner) module(ctx context.Context) (*engine.Module, *arena.Arena, error) {
	mod, err := r.loader.Load(ctx, r.location)
	if err != nil {
		return nil, nil, err
	}
	if r.mod != mod {
		r.mod = mod
		r.arena = arena.New(mod.Memory(), mod.HeapStart())
	}
	return r.mod, r.arena, nil
}

// Run executes op for req. When onProgress is non-nil the progress entry
// point is used and onProgress receives percentages as the engine reports
// them; operations without a progress entry point report 0 and 100.
func (r *Runner) Run(ctx context.Context, op codec.Operation, req codec.Request, onProgress engine.ProgressFunc) (any, error) {
	spec, ok := codec.Lookup(op)
	if !ok {
		return nil, simerrors.NotFound(simerrors.PhaseProtocol, "operation", string(op))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seed := uint64(0)
	if req.Seed == nil {
		seed = r.seeds()
	}
	wire := spec.Encode(req, seed)
	if spec.Degenerate(wire) {
		Logger().Debug("degenerate request answered without engine call",
			zap.String("operation", string(op)))
		return spec.Empty(req), nil
	}

	mod, a, err := r.module(ctx)
	if err != nil {
		return nil, err
	}

	export := spec.Export
	synthetic := false
	if onProgress != nil {
		if spec.ProgressExport != "" {
			export = spec.ProgressExport
		} else {
			synthetic = true
		}
	}
	if !mod.HasExport(export) {
		return nil, simerrors.MissingExport(export)
	}

	layout, err := spec.Write(a, wire)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rc, err := r.call(ctx, mod, export, spec.Params(layout, wire), onProgress, synthetic)
	if err != nil {
		return nil, err
	}

	n, err := spec.Check(export, rc, layout)
	if err != nil {
		Logger().Warn("engine call failed",
			zap.String("export", export),
			zap.Int32("code", rc),
			zap.Error(err))
		return nil, err
	}
	records, err := codec.ReadRecords(mod.Memory(), layout.Out, n, spec.Width)
	if err != nil {
		return nil, err
	}
	res, err := spec.Decode(records, req)
	if err != nil {
		return nil, err
	}

	Logger().Debug("simulation finished",
		zap.String("export", export),
		zap.Int("records", n),
		zap.Uint32("trials", wire.Trials),
		zap.Uint32("heap", a.Offset()),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// call invokes export with onProgress installed for exactly the duration
// of the call.
func (r *Runner) call(ctx context.Context, mod *engine.Module, export string, params []uint64,
	onProgress engine.ProgressFunc, synthetic bool) (int32, error) {

	if synthetic {
		onProgress(0)
		rc, err := mod.Call(ctx, export, params...)
		if err == nil && rc >= 0 {
			onProgress(100)
		}
		return rc, err
	}

	uninstall, err := mod.Host().Progress.Install(onProgress)
	if err != nil {
		return 0, err
	}
	defer uninstall()
	return mod.Call(ctx, export, params...)
}

// Close releases the module.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mod, r.arena = nil, nil
	return r.loader.Close(ctx)
}
