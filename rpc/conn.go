package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	simerrors "github.com/wippyai/simbridge/errors"
)

// Conn is one side of an envelope transport.
// Send may be called concurrently; Recv is called by a single reader.
// Recv returns io.EOF once the peer has closed the transport.
type Conn interface {
	Send(ctx context.Context, env *Envelope) error
	Recv(ctx context.Context) (*Envelope, error)
	Close() error
}

// pipeBuffer is the per-direction queue depth of an in-process pipe.
const pipeBuffer = 64

type pipeConn struct {
	in   <-chan *Envelope
	out  chan<- *Envelope
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-process Conns. Closing either end closes
// both.
func Pipe() (Conn, Conn) {
	a := make(chan *Envelope, pipeBuffer)
	b := make(chan *Envelope, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeConn{in: a, out: b, done: done, once: once},
		&pipeConn{in: b, out: a, done: done, once: once}
}

func (p *pipeConn) Send(ctx context.Context, env *Envelope) error {
	select {
	case <-p.done:
		return simerrors.Closed(nil)
	default:
	}
	select {
	case p.out <- env:
		return nil
	case <-p.done:
		return simerrors.Closed(nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Recv(ctx context.Context) (*Envelope, error) {
	select {
	case env := <-p.in:
		return env, nil
	default:
	}
	select {
	case env := <-p.in:
		return env, nil
	case <-p.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// maxLine bounds a single JSON-lines envelope (64MB).
const maxLine = 64 << 20

type streamConn struct {
	r       *bufio.Reader
	w       io.Writer
	closers []io.Closer

	wmu  sync.Mutex
	once sync.Once
	err  error
}

// NewStreamConn returns a Conn exchanging newline-delimited JSON envelopes
// over r and w. Close closes r and w when they implement io.Closer.
// Recv blocks in the underlying read and ignores ctx.
func NewStreamConn(r io.Reader, w io.Writer) Conn {
	c := &streamConn{r: bufio.NewReaderSize(r, 64<<10), w: w}
	if rc, ok := r.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	if wc, ok := w.(io.Closer); ok {
		c.closers = append(c.closers, wc)
	}
	return c
}

func (c *streamConn) Send(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(env)
	if err != nil {
		return simerrors.Wrap(simerrors.PhaseProtocol, simerrors.KindProtocol, err, "marshal envelope")
	}
	line = append(line, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return simerrors.Closed(err)
	}
	return nil
}

// Recv returns the next envelope. Lines that are not valid envelopes, or
// that exceed maxLine, are logged and skipped; only read errors end the
// stream.
func (c *streamConn) Recv(_ context.Context) (*Envelope, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if line == nil {
			Logger().Warn("oversized envelope skipped", zap.Int("limit", maxLine))
			continue
		}
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			Logger().Warn("malformed envelope skipped",
				zap.ByteString("line", line[:min(len(line), 256)]),
				zap.Error(err))
			continue
		}
		return &env, nil
	}
}

// readLine returns the next line without its terminator, or a nil line
// when the line was longer than maxLine and has been discarded.
func (c *streamConn) readLine() ([]byte, error) {
	line := []byte{}
	oversized := false
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if err != nil {
			if err == io.EOF && (len(line) > 0 || oversized) {
				break
			}
			return nil, err
		}
		if !oversized {
			line = append(line, chunk...)
			if len(line) > maxLine {
				oversized, line = true, nil
			}
		}
		if !isPrefix {
			break
		}
	}
	if oversized {
		return nil, nil
	}
	return line, nil
}

func (c *streamConn) Close() error {
	c.once.Do(func() {
		for _, cl := range c.closers {
			c.err = multierr.Append(c.err, cl.Close())
		}
	})
	return c.err
}
