package codec

import (
	"slices"
)

// Operation names a simulation request kind on the wire.
type Operation string

const (
	OpVsListEquity         Operation = "simulateVsListEquity"
	OpVsListWithRanks      Operation = "simulateVsListWithRanks"
	OpVsListTrace          Operation = "simulateVsListWithRanksTrace"
	OpVsListMonteCarlo     Operation = "simulateVsListWithRanksMonteCarlo"
	OpRankDistribution     Operation = "simulateRankDistribution"
	OpMultiHandEquity      Operation = "simulateMultiHandEquity"
	OpRangeVsRangeEquity   Operation = "simulateRangeVsRangeEquity"
	OpOpenRangesMonteCarlo Operation = "simulateOpenRangesMonteCarlo"
	OpParseRange           Operation = "parseRangeToHands"
	OpEvaluateRanking      Operation = "evaluateHandsRanking"
)

// Shape is an entry point parameter layout. Every text argument is passed
// as a pointer and length pair; every entry point ends with the output
// pointer and its capacity in words.
type Shape int

const (
	// ShapeVsList is (hero, board, compare, trials, seed, out).
	ShapeVsList Shape = iota
	// ShapeHandsBoard is (hands, board, trials, seed, out).
	ShapeHandsBoard
	// ShapeRangeVsRange is (hero range, villain range, board, trials, seed, out).
	ShapeRangeVsRange
	// ShapeOpenRanges is (hero range, opponent ranges, trials, seed, out).
	ShapeOpenRanges
	// ShapeRange is (range, out).
	ShapeRange
	// ShapeRanking is (hands, board, out).
	ShapeRanking
)

// Texts returns the number of text arguments.
func (s Shape) Texts() int {
	switch s {
	case ShapeVsList, ShapeRangeVsRange:
		return 3
	case ShapeRange:
		return 1
	default:
		return 2
	}
}

// Seeded reports whether the entry point takes trials and a seed.
func (s Shape) Seeded() bool {
	return s != ShapeRange && s != ShapeRanking
}

// Arity returns the number of entry point parameters.
func (s Shape) Arity() int {
	n := 2*s.Texts() + 2
	if s.Seeded() {
		n += 2
	}
	return n
}

// SeedParam returns the index of the 64-bit seed parameter, or -1.
func (s Shape) SeedParam() int {
	if !s.Seeded() {
		return -1
	}
	return 2*s.Texts() + 1
}

// Spec describes how one operation maps onto the engine.
type Spec struct {
	Operation      Operation
	Export         string
	ProgressExport string
	Shape          Shape
	Width          uint32
	Histogram      bool
	RequireHero    bool
	EmptyIsError   bool

	// Bounds on the number of hands and board cards outside of which a
	// hands/board request is answered empty without an engine call.
	MinGroups, MaxGroups uint32
	MinBoard, MaxBoard   int
}

var specs = []Spec{
	{
		Operation:      OpVsListEquity,
		Export:         "simulate_vs_list_equity",
		ProgressExport: "simulate_vs_list_equity_with_progress",
		Shape:          ShapeVsList,
		Width:          5,
		EmptyIsError:   true,
	},
	{
		Operation:      OpVsListWithRanks,
		Export:         "simulate_vs_list_with_ranks",
		ProgressExport: "simulate_vs_list_with_ranks_with_progress",
		Shape:          ShapeVsList,
		Width:          14,
		Histogram:      true,
		RequireHero:    true,
		EmptyIsError:   true,
	},
	{
		Operation: OpVsListTrace,
		Export:    "simulate_vs_list_with_ranks_trace",
		Shape:     ShapeVsList,
		Width:     11,
	},
	{
		Operation: OpVsListMonteCarlo,
		Export:    "simulate_vs_list_with_ranks_monte_carlo",
		Shape:     ShapeVsList,
		Width:     5 + 3*Categories,
	},
	{
		Operation:      OpRankDistribution,
		Export:         "simulate_rank_distribution",
		ProgressExport: "simulate_rank_distribution_with_progress",
		Shape:          ShapeHandsBoard,
		Width:          9,
		MinGroups:      1,
		MinBoard:       3,
		MaxBoard:       5,
	},
	{
		Operation:      OpMultiHandEquity,
		Export:         "simulate_multi_hand_equity",
		ProgressExport: "simulate_multi_hand_equity_with_progress",
		Shape:          ShapeHandsBoard,
		Width:          3,
		MinGroups:      3,
		MaxGroups:      6,
		MaxBoard:       5,
	},
	{
		Operation:      OpRangeVsRangeEquity,
		Export:         "simulate_range_vs_range_equity",
		ProgressExport: "simulate_range_vs_range_equity_with_progress",
		Shape:          ShapeRangeVsRange,
		Width:          4,
	},
	{
		Operation: OpOpenRangesMonteCarlo,
		Export:    "simulate_open_ranges_monte_carlo",
		Shape:     ShapeOpenRanges,
		Width:     3 + Categories,
	},
	{
		Operation: OpParseRange,
		Export:    "parse_range_to_hands",
		Shape:     ShapeRange,
		Width:     2,
	},
	{
		Operation: OpEvaluateRanking,
		Export:    "evaluate_hands_ranking",
		Shape:     ShapeRanking,
		Width:     9,
		MinGroups: 1,
		MinBoard:  1,
		MaxBoard:  5,
	},
}

// Lookup returns the spec for op.
func Lookup(op Operation) (Spec, bool) {
	for _, s := range specs {
		if s.Operation == op {
			return s, true
		}
	}
	return Spec{}, false
}

// Operations lists all known operations.
func Operations() []Operation {
	ops := make([]Operation, len(specs))
	for i, s := range specs {
		ops[i] = s.Operation
	}
	return ops
}

// Specs returns a copy of the operation table.
func Specs() []Spec {
	return slices.Clone(specs)
}

// Exports lists every entry point name the table refers to.
func Exports() []string {
	var names []string
	for _, s := range specs {
		names = append(names, s.Export)
		if s.ProgressExport != "" {
			names = append(names, s.ProgressExport)
		}
	}
	return names
}
