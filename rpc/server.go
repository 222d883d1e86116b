package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wippyai/simbridge/codec"
	"github.com/wippyai/simbridge/engine"
	simerrors "github.com/wippyai/simbridge/errors"
)

// Handler resolves one request. simulation.Runner implements it.
type Handler interface {
	Run(ctx context.Context, op codec.Operation, req codec.Request, onProgress engine.ProgressFunc) (any, error)
}

// Server answers requests arriving on a Conn, one at a time.
type Server struct {
	handler Handler
}

// NewServer creates a server dispatching to h.
func NewServer(h Handler) *Server {
	return &Server{handler: h}
}

// Serve handles requests until conn reaches EOF or ctx ends. A request is
// fully answered before the next one is read.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	for {
		env, err := conn.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := conn.Send(ctx, s.handle(ctx, conn, env)); err != nil {
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, conn Conn, env *Envelope) *Envelope {
	data, err := s.resolve(ctx, conn, env)
	if err != nil {
		Logger().Warn("request failed",
			zap.Uint64("id", env.ID),
			zap.String("operation", string(env.Operation)),
			zap.Error(err))
		return errorEnvelope(env.ID, err)
	}
	return resultEnvelope(env.ID, data)
}

func (s *Server) resolve(ctx context.Context, conn Conn, env *Envelope) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("request panicked",
				zap.Uint64("id", env.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = simerrors.New(simerrors.PhaseRuntime, simerrors.KindModuleFailure).
				Detail("panic: %v", r).
				Build()
		}
	}()

	if !env.IsRequest() {
		return nil, simerrors.Protocol(simerrors.PhaseProtocol, fmt.Sprintf("unexpected %q envelope on worker", env.Type))
	}
	var req codec.Request
	if len(env.Params) > 0 {
		if err := json.Unmarshal(env.Params, &req); err != nil {
			return nil, simerrors.Wrap(simerrors.PhaseProtocol, simerrors.KindInvalidInput, err, "params")
		}
	}

	var onProgress engine.ProgressFunc
	if req.Options.Progress {
		id := env.ID
		onProgress = func(pct int) {
			if err := conn.Send(ctx, progressEnvelope(id, pct)); err != nil {
				Logger().Debug("progress not delivered", zap.Uint64("id", id), zap.Error(err))
			}
		}
	}

	res, err := s.handler.Run(ctx, env.Operation, req, onProgress)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(res)
	if err != nil {
		return nil, simerrors.Wrap(simerrors.PhaseDecode, simerrors.KindProtocol, err, "marshal result")
	}
	return data, nil
}
