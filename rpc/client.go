package rpc

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/simbridge/card"
	"github.com/wippyai/simbridge/codec"
	simerrors "github.com/wippyai/simbridge/errors"
)

// ids is shared by every client in the process so no two requests ever
// carry the same id.
var ids atomic.Uint64

func nextID() uint64 {
	return ids.Add(1)
}

// Handle is a pending call. It completes exactly once.
type Handle struct {
	id         uint64
	op         codec.Operation
	onProgress func(pct int)

	done chan struct{}
	data json.RawMessage
	err  error
}

// ID returns the correlation id of the call.
func (h *Handle) ID() uint64 { return h.id }

// Operation returns the requested operation.
func (h *Handle) Operation() codec.Operation { return h.op }

// Done is closed when the call completes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the call completes or ctx ends. An ended ctx abandons
// the handle; the worker still finishes the request.
func (h *Handle) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-h.done:
		return h.data, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call and unmarshals its result into v.
func (h *Handle) Decode(ctx context.Context, v any) error {
	data, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
			Detail("result for %s", h.op).
			Cause(err).
			Build()
	}
	return nil
}

func (h *Handle) resolve(data json.RawMessage, err error) {
	h.data, h.err = data, err
	close(h.done)
}

// Client issues calls over a Conn and correlates the replies.
type Client struct {
	conn Conn

	mu      sync.Mutex
	pending map[uint64]*Handle
	err     error
	closed  chan struct{}
}

// NewClient starts a client reading replies from conn.
func NewClient(conn Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]*Handle),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends a request and returns its handle. When onProgress is set the
// request asks for progress and onProgress receives it on the client's
// reader goroutine.
func (c *Client) Call(ctx context.Context, op codec.Operation, req codec.Request, onProgress func(pct int)) (*Handle, error) {
	req.Options.Progress = onProgress != nil
	params, err := json.Marshal(req)
	if err != nil {
		return nil, simerrors.Wrap(simerrors.PhaseEncode, simerrors.KindInvalidInput, err, "marshal params")
	}

	h := &Handle{
		id:         nextID(),
		op:         op,
		onProgress: onProgress,
		done:       make(chan struct{}),
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, simerrors.Closed(err)
	}
	c.pending[h.id] = h
	c.mu.Unlock()

	if err := c.conn.Send(ctx, &Envelope{ID: h.id, Operation: op, Params: params}); err != nil {
		c.take(h.id)
		return nil, err
	}
	return h, nil
}

// Pending returns the number of calls awaiting completion.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the client can no longer complete calls.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err returns the reason the client stopped, or nil while it is running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the transport and rejects every pending call.
func (c *Client) Close() error {
	err := c.conn.Close()
	c.fail(io.EOF)
	return err
}

func (c *Client) take(id uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return h
}

func (c *Client) lookup(id uint64) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id]
}

func (c *Client) readLoop() {
	for {
		env, err := c.conn.Recv(context.Background())
		if err != nil {
			if err != io.EOF {
				Logger().Warn("client transport failed", zap.Error(err))
			}
			c.fail(err)
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env *Envelope) {
	switch env.Type {
	case TypeProgress:
		h := c.lookup(env.ID)
		if h == nil || h.onProgress == nil || env.Pct == nil {
			Logger().Debug("progress dropped", zap.Uint64("id", env.ID))
			return
		}
		h.onProgress(clampPct(*env.Pct))

	case TypeResult:
		h := c.take(env.ID)
		if h == nil {
			Logger().Debug("result for unknown id dropped", zap.Uint64("id", env.ID))
			return
		}
		h.resolve(env.Data, nil)

	case TypeError:
		h := c.take(env.ID)
		if h == nil {
			Logger().Debug("error for unknown id dropped", zap.Uint64("id", env.ID))
			return
		}
		h.resolve(nil, simerrors.Remote(env.Error))

	default:
		h := c.take(env.ID)
		if h == nil {
			Logger().Debug("unexpected envelope dropped",
				zap.Uint64("id", env.ID),
				zap.String("type", string(env.Type)))
			return
		}
		h.resolve(nil, simerrors.New(simerrors.PhaseProtocol, simerrors.KindProtocol).
			Value(env.Type).
			Detail("unexpected envelope type %q for call %d", env.Type, env.ID).
			Build())
	}
}

func (c *Client) fail(cause error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = cause
	pending := c.pending
	c.pending = make(map[uint64]*Handle)
	close(c.closed)
	c.mu.Unlock()

	for _, h := range pending {
		h.resolve(nil, simerrors.Closed(cause))
	}
}

func clampPct(pct int) int {
	return min(max(pct, 0), 100)
}

// CallOption adjusts a typed call.
type CallOption func(*callOptions)

type callOptions struct {
	progress func(pct int)
}

// WithProgress streams progress for the call to fn.
func WithProgress(fn func(pct int)) CallOption {
	return func(o *callOptions) { o.progress = fn }
}

func invoke[T any](ctx context.Context, c *Client, op codec.Operation, req codec.Request, opts []CallOption) (T, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	var out T
	h, err := c.Call(ctx, op, req, o.progress)
	if err != nil {
		return out, err
	}
	err = h.Decode(ctx, &out)
	return out, err
}

// SimulateVsListEquity runs simulateVsListEquity.
func (c *Client) SimulateVsListEquity(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.SimulationResult, error) {
	return invoke[*codec.SimulationResult](ctx, c, codec.OpVsListEquity, req, opts)
}

// SimulateVsListWithRanks runs simulateVsListWithRanks. Rows carry
// category histograms.
func (c *Client) SimulateVsListWithRanks(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.SimulationResult, error) {
	return invoke[*codec.SimulationResult](ctx, c, codec.OpVsListWithRanks, req, opts)
}

// SimulateVsListTrace runs simulateVsListWithRanksTrace.
func (c *Client) SimulateVsListTrace(ctx context.Context, req codec.Request, opts ...CallOption) ([]codec.TraceEntry, error) {
	return invoke[[]codec.TraceEntry](ctx, c, codec.OpVsListTrace, req, opts)
}

// SimulateRankDistribution runs simulateRankDistribution.
func (c *Client) SimulateRankDistribution(ctx context.Context, req codec.Request, opts ...CallOption) ([]codec.RankDistributionEntry, error) {
	return invoke[[]codec.RankDistributionEntry](ctx, c, codec.OpRankDistribution, req, opts)
}

// SimulateVsListMonteCarlo runs simulateVsListWithRanksMonteCarlo.
func (c *Client) SimulateVsListMonteCarlo(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.MonteCarloResult, error) {
	return invoke[*codec.MonteCarloResult](ctx, c, codec.OpVsListMonteCarlo, req, opts)
}

// SimulateMultiHandEquity runs simulateMultiHandEquity over req.Hands.
func (c *Client) SimulateMultiHandEquity(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.MultiHandResult, error) {
	return invoke[*codec.MultiHandResult](ctx, c, codec.OpMultiHandEquity, req, opts)
}

// SimulateRangeVsRangeEquity runs simulateRangeVsRangeEquity.
func (c *Client) SimulateRangeVsRangeEquity(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.RangeVsRangeResult, error) {
	return invoke[*codec.RangeVsRangeResult](ctx, c, codec.OpRangeVsRangeEquity, req, opts)
}

// SimulateOpenRangesMonteCarlo runs simulateOpenRangesMonteCarlo.
func (c *Client) SimulateOpenRangesMonteCarlo(ctx context.Context, req codec.Request, opts ...CallOption) (*codec.OpenRangesResult, error) {
	return invoke[*codec.OpenRangesResult](ctx, c, codec.OpOpenRangesMonteCarlo, req, opts)
}

// ParseRangeToHands expands a range expression, leaving out combos that
// touch excluded.
func (c *Client) ParseRangeToHands(ctx context.Context, expr string, excluded []card.Card) ([]card.Combo, error) {
	return invoke[[]card.Combo](ctx, c, codec.OpParseRange, codec.Request{Range: expr, Dead: excluded}, nil)
}

// EvaluateHandsRanking ranks req.Hands on req.Board, strongest first.
func (c *Client) EvaluateHandsRanking(ctx context.Context, req codec.Request) ([]codec.HandRanking, error) {
	return invoke[[]codec.HandRanking](ctx, c, codec.OpEvaluateRanking, req, nil)
}
