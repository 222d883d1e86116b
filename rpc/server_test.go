package rpc

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/simbridge/codec"
	"github.com/wippyai/simbridge/engine"
	simerrors "github.com/wippyai/simbridge/errors"
)

type handlerFunc func(ctx context.Context, op codec.Operation, req codec.Request, onProgress engine.ProgressFunc) (any, error)

func (f handlerFunc) Run(ctx context.Context, op codec.Operation, req codec.Request, onProgress engine.ProgressFunc) (any, error) {
	return f(ctx, op, req, onProgress)
}

func startServer(t *testing.T, h Handler) (Conn, <-chan error) {
	t.Helper()
	clientEnd, serverEnd := Pipe()
	done := make(chan error, 1)
	go func() { done <- NewServer(h).Serve(context.Background(), serverEnd) }()
	t.Cleanup(func() { clientEnd.Close() })
	return clientEnd, done
}

// exchange sends a request and collects envelopes up to its final reply.
func exchange(t *testing.T, conn Conn, env *Envelope) []*Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Send(ctx, env); err != nil {
		t.Fatal(err)
	}

	var got []*Envelope
	for {
		reply, err := conn.Recv(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if reply.ID != env.ID {
			t.Fatalf("reply for %d while waiting for %d", reply.ID, env.ID)
		}
		got = append(got, reply)
		if reply.Type != TypeProgress {
			return got
		}
	}
}

func request(t *testing.T, id uint64, op codec.Operation, req codec.Request) *Envelope {
	t.Helper()
	params, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return &Envelope{ID: id, Operation: op, Params: params}
}

func TestServeRoutesProgressOnlyWhenAsked(t *testing.T) {
	var sawListener []bool
	conn, _ := startServer(t, handlerFunc(func(_ context.Context, op codec.Operation, req codec.Request, onProgress engine.ProgressFunc) (any, error) {
		sawListener = append(sawListener, onProgress != nil)
		if onProgress != nil {
			onProgress(0)
			onProgress(55)
			onProgress(100)
		}
		return map[string]any{"op": op, "trials": req.Trials}, nil
	}))

	got := exchange(t, conn, request(t, 1, codec.OpVsListEquity, codec.Request{Trials: 9, Options: codec.Options{Progress: true}}))
	if len(got) != 4 {
		t.Fatalf("got %d envelopes, want 4", len(got))
	}
	for i, want := range []int{0, 55, 100} {
		if got[i].Type != TypeProgress || *got[i].Pct != want {
			t.Errorf("envelope %d = %+v, want progress %d", i, got[i], want)
		}
	}
	if got[3].Type != TypeResult || string(got[3].Data) != `{"op":"simulateVsListEquity","trials":9}` {
		t.Errorf("result = %+v (%s)", got[3], got[3].Data)
	}

	got = exchange(t, conn, request(t, 2, codec.OpVsListEquity, codec.Request{Trials: 9}))
	if len(got) != 1 || got[0].Type != TypeResult {
		t.Errorf("got %+v, want a single result", got)
	}
	if !slices.Equal(sawListener, []bool{true, false}) {
		t.Errorf("listeners = %v", sawListener)
	}
}

func TestServeConvertsFailures(t *testing.T) {
	conn, _ := startServer(t, handlerFunc(func(_ context.Context, op codec.Operation, req codec.Request, _ engine.ProgressFunc) (any, error) {
		switch req.Trials {
		case 1:
			return nil, simerrors.ModuleFailure("simulate_vs_list_equity", -5)
		case 2:
			panic("engine exploded")
		}
		return nil, simerrors.NotFound(simerrors.PhaseProtocol, "operation", string(op))
	}))

	tests := []struct {
		name string
		env  *Envelope
		want string
	}{
		{"module failure", request(t, 10, codec.OpVsListEquity, codec.Request{Trials: 1}), "failed with code -5"},
		{"panic", request(t, 11, codec.OpVsListEquity, codec.Request{Trials: 2}), "engine exploded"},
		{"unknown operation", request(t, 12, "simulateNothing", codec.Request{Trials: 3}), `"simulateNothing" not found`},
		{"bad params", &Envelope{ID: 13, Operation: codec.OpVsListEquity, Params: json.RawMessage(`{"hero":["Zz"]}`)}, "params"},
		{"not a request", &Envelope{ID: 14, Type: TypeResult}, "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exchange(t, conn, tt.env)
			if len(got) != 1 || got[0].Type != TypeError {
				t.Fatalf("got %+v, want a single error", got)
			}
			if !strings.Contains(got[0].Error, tt.want) {
				t.Errorf("error %q does not mention %q", got[0].Error, tt.want)
			}
		})
	}

	// The worker keeps serving after failures.
	got := exchange(t, conn, request(t, 15, codec.OpVsListEquity, codec.Request{Trials: 1}))
	if got[0].Type != TypeError {
		t.Errorf("got %+v", got[0])
	}
}

func TestServeSurvivesMalformedLine(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- NewServer(handlerFunc(func(_ context.Context, _ codec.Operation, req codec.Request, _ engine.ProgressFunc) (any, error) {
			return req.Trials, nil
		})).Serve(context.Background(), NewStreamConn(inR, outW))
	}()

	go func() {
		io.WriteString(inW, "{not json}\n")
		io.WriteString(inW, `{"id":2,"operation":"simulateVsListEquity","params":{"trials":7}}`+"\n")
	}()

	client := NewStreamConn(outR, io.Discard)
	reply, err := client.Recv(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reply.ID != 2 || reply.Type != TypeResult || string(reply.Data) != "7" {
		t.Errorf("reply = %+v (%s)", reply, reply.Data)
	}

	inW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeReturnsOnClose(t *testing.T) {
	conn, done := startServer(t, handlerFunc(func(context.Context, codec.Operation, codec.Request, engine.ProgressFunc) (any, error) {
		return nil, nil
	}))
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
