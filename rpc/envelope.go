// Package rpc carries simulation requests between an orchestrating client
// and isolated workers.
//
// Every message is an Envelope. A request carries an id, an operation tag
// and its parameters; the worker answers with zero or more progress
// envelopes followed by exactly one result or error envelope for the same
// id. Ids are allocated from a process-wide counter and never reused.
package rpc

import (
	"encoding/json"

	"github.com/wippyai/simbridge/codec"
)

// Type tags a worker-to-client envelope. Requests carry no type.
type Type string

const (
	TypeProgress Type = "progress"
	TypeResult   Type = "result"
	TypeError    Type = "error"
)

// Envelope is the unit of exchange on a Conn.
type Envelope struct {
	ID        uint64          `json:"id"`
	Type      Type            `json:"type,omitempty"`
	Operation codec.Operation `json:"operation,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Pct       *int            `json:"pct,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// IsRequest reports whether e is a client request.
func (e *Envelope) IsRequest() bool {
	return e.Type == ""
}

func progressEnvelope(id uint64, pct int) *Envelope {
	return &Envelope{ID: id, Type: TypeProgress, Pct: &pct}
}

func resultEnvelope(id uint64, data json.RawMessage) *Envelope {
	return &Envelope{ID: id, Type: TypeResult, Data: data}
}

func errorEnvelope(id uint64, err error) *Envelope {
	return &Envelope{ID: id, Type: TypeError, Error: err.Error()}
}
