// Package simbridge runs a precompiled WebAssembly probability-simulation
// engine from Go and carries requests to it across worker boundaries.
//
// Callers hand over domain values (a hero hand, a board, opponent hands, a
// trial count) and receive decoded results. Everything between is owned by
// the bridge: linear memory layout, a bump allocator, the engine's numeric
// calling convention and the envelope protocol between an orchestrating
// client and isolated workers.
//
// # Architecture Overview
//
//	simbridge/           Root package with the Memory interface and Span
//	├── card/            Two-character notation to packed card values
//	├── engine/          Module loading on wazero, host callbacks, progress slot
//	├── arena/           Bump allocator over engine memory
//	├── codec/           Operation table, request encoding, record decoding
//	├── simulation/      Worker-side runner tying engine, arena and codec together
//	├── refengine/       Go reference engine exposed through the same ABI
//	├── rpc/             Envelopes, transports, client, server and worker pool
//	├── errors/          Structured error types
//	└── cmd/simbridge/   CLI: run, worker, serve and an interactive mode
//
// # Quick Start
//
// Run a simulation in-process against the reference engine:
//
//	runner := simulation.NewRunner(refengine.Location, simulation.Config{})
//	defer runner.Close(ctx)
//
//	client, stop := rpc.NewLocalWorker(ctx, runner)
//	defer stop()
//
//	res, err := client.SimulateVsListEquity(ctx, codec.Request{
//	    Hero:    card.MustParseList("As Ks"),
//	    Compare: [][]card.Card{card.MustParseList("Qc Qd")},
//	    Trials:  20000,
//	})
//	fmt.Printf("%.3f\n", res.HeroEquity)
//
// # Concurrency
//
// A worker owns one module instance and one allocator cursor and handles its
// requests one at a time. Use rpc.Pool to spread work over several workers.
//
// # Memory Model
//
// Engine memory only grows. Every request allocates fresh regions from the
// bump allocator and nothing is freed until the module instance is dropped.
package simbridge
