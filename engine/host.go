package engine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	insecure "math/rand/v2"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	simerrors "github.com/wippyai/simbridge/errors"
)

// Host import names.
const (
	HostModule     = "env"
	ProgressImport = "report_progress"
	RandomImport   = "getrandom_fill"
	MemoryExport   = "memory"
)

// MaxRandomBytes limits a single random fill request (1MB).
const MaxRandomBytes = 1 << 20

// ProgressFunc receives a completion percentage in [0, 100].
type ProgressFunc func(pct int)

// ProgressSlot holds at most one progress listener.
type ProgressSlot struct {
	mu    sync.Mutex
	fn    ProgressFunc
	token uint64
}

// Install sets fn as the active listener. The returned uninstall function
// clears it and is safe to call more than once.
func (s *ProgressSlot) Install(fn ProgressFunc) (func(), error) {
	if fn == nil {
		return func() {}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		return nil, simerrors.New(simerrors.PhaseCall, simerrors.KindInvalidInput).
			Detail("progress listener already installed").
			Build()
	}
	s.token++
	token := s.token
	s.fn = fn
	return func() {
		s.mu.Lock()
		if s.token == token {
			s.fn = nil
		}
		s.mu.Unlock()
	}, nil
}

// Installed reports whether a listener is active.
func (s *ProgressSlot) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Report forwards pct to the active listener, if any.
func (s *ProgressSlot) Report(pct int) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return
	}
	fn(min(max(pct, 0), 100))
}

// Host implements the callbacks a module imports from HostModule.
type Host struct {
	Progress ProgressSlot

	random   io.Reader
	fallback sync.Once
}

// NewHost creates a host drawing random bytes from src, or crypto/rand when
// src is nil.
func NewHost(src io.Reader) *Host {
	if src == nil {
		src = rand.Reader
	}
	return &Host{random: src}
}

// Fill fills buf with random bytes. The secure source is used when it
// works; otherwise a pseudo-random generator fills the buffer.
func (h *Host) Fill(buf []byte) {
	if _, err := io.ReadFull(h.random, buf); err == nil {
		return
	}
	h.fallback.Do(func() {
		Logger().Warn("secure random source unavailable, using pseudo-random fallback")
	})
	for i := 0; i < len(buf); {
		v := insecure.Uint64()
		for j := 0; j < 8 && i < len(buf); j++ {
			buf[i] = byte(v >> (8 * j))
			i++
		}
	}
}

// Uint64 returns a random 64-bit value from the same source as Fill.
func (h *Host) Uint64() uint64 {
	var b [8]byte
	h.Fill(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (h *Host) register(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.reportProgress), []api.ValueType{api.ValueTypeI32}, nil).
		Export(ProgressImport).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.randomFill),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export(RandomImport).
		Instantiate(ctx)
	return err
}

func (h *Host) reportProgress(_ context.Context, _ api.Module, stack []uint64) {
	h.Progress.Report(int(api.DecodeI32(stack[0])))
}

// randomFill returns 0 on success and 1 when the range is invalid.
func (h *Host) randomFill(_ context.Context, mod api.Module, stack []uint64) {
	dest := api.DecodeU32(stack[0])
	n := api.DecodeU32(stack[1])
	if n > MaxRandomBytes {
		stack[0] = api.EncodeI32(1)
		return
	}
	mem := mod.Memory()
	if mem == nil {
		stack[0] = api.EncodeI32(1)
		return
	}
	view, ok := mem.Read(dest, n)
	if !ok {
		Logger().Debug("random fill out of bounds", zap.Uint32("dest", dest), zap.Uint32("len", n))
		stack[0] = api.EncodeI32(1)
		return
	}
	h.Fill(view)
	stack[0] = api.EncodeI32(0)
}
