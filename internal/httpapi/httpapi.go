// Package httpapi exposes simulations over HTTP in front of a worker pool.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wippyai/simbridge/codec"
	simerrors "github.com/wippyai/simbridge/errors"
	"github.com/wippyai/simbridge/rpc"
)

// NDJSON is the media type that selects streamed progress.
const NDJSON = "application/x-ndjson"

// maxBody bounds a request body (1MB).
const maxBody = 1 << 20

// Caller issues simulation calls. *rpc.Pool and *rpc.Client implement it.
type Caller interface {
	Call(ctx context.Context, op codec.Operation, req codec.Request, onProgress func(pct int)) (*rpc.Handle, error)
}

// Options configures the router.
type Options struct {
	// DefaultTrials replaces a zero trial count.
	DefaultTrials uint32
	// Timeout bounds how long a request waits for its result. The worker
	// still finishes an abandoned call.
	Timeout time.Duration
	// Logger receives access and failure logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Line is one streamed NDJSON line.
type Line struct {
	Type  rpc.Type        `json:"type"`
	Pct   *int            `json:"pct,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type api struct {
	caller Caller
	opts   Options
	log    *zap.Logger
}

// NewRouter returns the HTTP handler.
func NewRouter(c Caller, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	a := &api{caller: c, opts: opts, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/operations", a.operations)
		r.Post("/simulations/{operation}", a.simulate)
	})
	return r
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (a *api) operations(w http.ResponseWriter, _ *http.Request) {
	type op struct {
		Name     codec.Operation `json:"name"`
		Export   string          `json:"export"`
		Progress bool            `json:"progress"`
	}
	var ops []op
	for _, s := range codec.Specs() {
		ops = append(ops, op{Name: s.Operation, Export: s.Export, Progress: s.ProgressExport != ""})
	}
	writeJSON(w, http.StatusOK, ops)
}

func (a *api) simulate(w http.ResponseWriter, r *http.Request) {
	op := codec.Operation(chi.URLParam(r, "operation"))
	if _, ok := codec.Lookup(op); !ok {
		writeError(w, http.StatusBadRequest, simerrors.NotFound(simerrors.PhaseProtocol, "operation", string(op)))
		return
	}

	var req codec.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, simerrors.Wrap(simerrors.PhaseEncode, simerrors.KindInvalidInput, err, "request body"))
		return
	}
	if req.Trials == 0 {
		req.Trials = a.opts.DefaultTrials
	}

	ctx := r.Context()
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	if r.Header.Get("Accept") == NDJSON || req.Options.Progress {
		a.stream(ctx, w, op, req)
		return
	}

	h, err := a.caller.Call(ctx, op, req, nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	data, err := h.Wait(ctx)
	if err != nil {
		a.log.Warn("simulation failed", zap.String("operation", string(op)), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// stream writes progress lines while the call runs, then one result or
// error line.
func (a *api) stream(ctx context.Context, w http.ResponseWriter, op codec.Operation, req codec.Request) {
	progress := make(chan int, 128)
	h, err := a.caller.Call(ctx, op, req, func(pct int) {
		select {
		case progress <- pct:
		default:
		}
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", NDJSON)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	emit := func(l Line) {
		_ = enc.Encode(l)
		if flusher != nil {
			flusher.Flush()
		}
	}

	for {
		select {
		case pct := <-progress:
			emit(Line{Type: rpc.TypeProgress, Pct: &pct})
		case <-h.Done():
			drain(progress, func(pct int) { emit(Line{Type: rpc.TypeProgress, Pct: &pct}) })
			data, err := h.Wait(ctx)
			if err != nil {
				emit(Line{Type: rpc.TypeError, Error: err.Error()})
				return
			}
			emit(Line{Type: rpc.TypeResult, Data: data})
			return
		case <-ctx.Done():
			emit(Line{Type: rpc.TypeError, Error: ctx.Err().Error()})
			return
		}
	}
}

// drain hands every queued value to fn without blocking.
func drain(ch <-chan int, fn func(int)) {
	for {
		select {
		case v := <-ch:
			fn(v)
		default:
			return
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, simerrors.ErrInvalidInput), errors.Is(err, simerrors.ErrInvalidCard):
		return http.StatusBadRequest
	case errors.Is(err, simerrors.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
