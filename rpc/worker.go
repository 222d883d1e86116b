package rpc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/simbridge/codec"
	simerrors "github.com/wippyai/simbridge/errors"
)

// NewLocalWorker serves h on an in-process pipe and returns a client for
// it. stop closes the pipe and waits for the serve loop to exit.
func NewLocalWorker(ctx context.Context, h Handler) (*Client, func() error) {
	clientEnd, serverEnd := Pipe()
	client := NewClient(clientEnd)

	done := make(chan error, 1)
	go func() {
		done <- NewServer(h).Serve(ctx, serverEnd)
	}()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			err = client.Close()
			if serr := <-done; serr != nil && !errors.Is(serr, context.Canceled) && !errors.Is(serr, simerrors.ErrClosed) {
				err = multierr.Append(err, serr)
			}
		})
		return err
	}
	return client, stop
}

// SpawnWorker starts path as a subprocess speaking JSON-lines envelopes on
// its stdin and stdout. The subprocess inherits stderr. stop closes its
// stdin and waits for it to exit.
func SpawnWorker(ctx context.Context, path string, args ...string) (*Client, func() error, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, simerrors.Wrap(simerrors.PhaseRuntime, simerrors.KindLoadFailure, err, "worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, simerrors.Wrap(simerrors.PhaseRuntime, simerrors.KindLoadFailure, err, "worker stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, simerrors.Wrap(simerrors.PhaseRuntime, simerrors.KindLoadFailure, err, "start worker "+path)
	}
	Logger().Info("worker started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))

	client := NewClient(NewStreamConn(stdout, stdin))

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			stopErr = client.Close()
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				stopErr = multierr.Append(stopErr, err)
			}
			Logger().Info("worker stopped", zap.Int("pid", cmd.Process.Pid))
		})
		return stopErr
	}
	return client, stop, nil
}

// Pool spreads calls over several workers.
type Pool struct {
	mu      sync.Mutex
	members []poolMember
}

type poolMember struct {
	client *Client
	stop   func() error
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Add adds a worker. stop, when non-nil, is called by Close.
func (p *Pool) Add(c *Client, stop func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = append(p.members, poolMember{client: c, stop: stop})
}

// Len returns the number of workers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Pick returns the live worker with the fewest pending calls.
func (p *Pool) Pick() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Client
	bestLoad := 0
	for _, m := range p.members {
		select {
		case <-m.client.Done():
			continue
		default:
		}
		if load := m.client.Pending(); best == nil || load < bestLoad {
			best, bestLoad = m.client, load
		}
	}
	if best == nil {
		return nil, simerrors.New(simerrors.PhaseRuntime, simerrors.KindClosed).
			Detail("no live workers").
			Build()
	}
	return best, nil
}

// Call issues a call on the least loaded worker.
func (p *Pool) Call(ctx context.Context, op codec.Operation, req codec.Request, onProgress func(pct int)) (*Handle, error) {
	c, err := p.Pick()
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, op, req, onProgress)
}

// Close stops every worker.
func (p *Pool) Close() error {
	p.mu.Lock()
	members := p.members
	p.members = nil
	p.mu.Unlock()

	var err error
	for _, m := range members {
		if m.stop != nil {
			err = multierr.Append(err, m.stop())
		} else {
			err = multierr.Append(err, m.client.Close())
		}
	}
	return err
}
