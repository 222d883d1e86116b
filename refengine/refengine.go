// Package refengine is a Go reference implementation of the simulation
// engine ABI.
//
// The engine runs as a wazero host module. A generated shim module imports
// its functions, exports them under the engine entry point names and exports
// a linear memory, so the reference engine is loaded, fed and decoded through
// exactly the same path as a compiled engine module:
//
//	loader := engine.NewLoader(refengine.Configure(engine.Config{}))
//	mod, err := loader.Load(ctx, refengine.Location)
//
// Showdowns are decided with github.com/paulhankin/poker. Randomness comes
// from a PCG generator seeded by the request, or by the host random source
// when the seed is 0.
package refengine

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/simbridge/card"
	"github.com/wippyai/simbridge/codec"
	"github.com/wippyai/simbridge/engine"
	"github.com/wippyai/simbridge/internal/wasmbin"
)

// Location is the module location served by the reference engine.
const Location = "builtin:reference"

// HostModule is the import namespace the shim uses.
const HostModule = "simbridge_reference"

// Return codes. Invalid UTF-8 in a text argument yields a code by position:
// CodeText1UTF8 for the first, then -3 and -4.
const (
	CodeNullPointer  int32 = -1
	CodeText1UTF8    int32 = -2
	CodeText2UTF8    int32 = -3
	CodeText3UTF8    int32 = -4
	CodeInvalidInput int32 = -5
	CodeOutputSmall  int32 = -6
)

// Engine registers the reference host module.
type Engine struct{}

var _ engine.Extension = (*Engine)(nil)

// Register implements engine.Extension.
func (e *Engine) Register(ctx context.Context, r wazero.Runtime, host *engine.Host) error {
	b := r.NewHostModuleBuilder(HostModule)
	for _, spec := range codec.Specs() {
		params, results := signature(spec.Shape)
		b.NewFunctionBuilder().
			WithGoModuleFunction(entryPoint(host, spec, false), params, results).
			Export(spec.Export)
		if spec.ProgressExport != "" {
			b.NewFunctionBuilder().
				WithGoModuleFunction(entryPoint(host, spec, true), params, results).
				Export(spec.ProgressExport)
		}
	}
	_, err := b.Instantiate(ctx)
	return err
}

// Configure returns cfg set up to load Location: the reference engine is
// added as an extension and the fetcher serves the shim for Location.
func Configure(cfg engine.Config) engine.Config {
	next := cfg.Fetcher
	if next == nil {
		next = &engine.DefaultFetcher{}
	}
	cfg.Fetcher = engine.FetcherFunc(func(ctx context.Context, location string) ([]byte, error) {
		if location == Location {
			return Shim(), nil
		}
		return next.Fetch(ctx, location)
	})
	cfg.Extensions = append(cfg.Extensions, &Engine{})
	return cfg
}

func signature(shape codec.Shape) ([]api.ValueType, []api.ValueType) {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	params := make([]api.ValueType, 0, shape.Arity())
	for range shape.Texts() {
		params = append(params, i32, i32)
	}
	if shape.Seeded() {
		params = append(params, i32, i64)
	}
	return append(params, i32, i32), []api.ValueType{i32}
}

func valTypes(types []api.ValueType) []wasmbin.ValType {
	out := make([]wasmbin.ValType, len(types))
	for i, t := range types {
		if t == api.ValueTypeI64 {
			out[i] = wasmbin.I64
		} else {
			out[i] = wasmbin.I32
		}
	}
	return out
}

// Shim returns a module that forwards every entry point to HostModule and
// exports one page of memory.
func Shim() []byte {
	m := &wasmbin.Module{Memory: &wasmbin.Memory{Min: 1}}
	type fwd struct {
		name string
		ft   wasmbin.FuncType
	}
	var fwds []fwd
	for _, spec := range codec.Specs() {
		params, results := signature(spec.Shape)
		ft := wasmbin.FuncType{Params: valTypes(params), Results: valTypes(results)}
		fwds = append(fwds, fwd{spec.Export, ft})
		if spec.ProgressExport != "" {
			fwds = append(fwds, fwd{spec.ProgressExport, ft})
		}
	}

	imports := make([]uint32, len(fwds))
	for i, f := range fwds {
		imports[i] = m.ImportFunc(HostModule, f.name, f.ft)
	}
	for i, f := range fwds {
		code := &wasmbin.Code{}
		for p := range f.ft.Params {
			code.LocalGet(uint32(p))
		}
		code.Call(imports[i])
		m.ExportFunc(f.name, m.AddFunc(f.ft, code.Bytes()))
	}
	m.ExportMemory(engine.MemoryExport)
	return m.Encode()
}

// call is a decoded entry point invocation.
type call struct {
	texts         []string
	trials        uint32
	seed          uint64
	out, outWords uint32
}

func decodeArgs(shape codec.Shape, stack []uint64) (call, [][2]uint32) {
	u := func(i int) uint32 { return api.DecodeU32(stack[i]) }
	spans := make([][2]uint32, shape.Texts())
	for i := range spans {
		spans[i] = [2]uint32{u(2 * i), u(2*i + 1)}
	}
	next := 2 * len(spans)
	var c call
	if shape.Seeded() {
		c.trials, c.seed = u(next), stack[next+1]
		next += 2
	}
	c.out, c.outWords = u(next), u(next+1)
	return c, spans
}

func entryPoint(host *engine.Host, spec codec.Spec, withProgress bool) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		rc := invoke(host, spec, withProgress, mod.Memory(), stack)
		stack[0] = api.EncodeI32(rc)
	}
}

func invoke(host *engine.Host, spec codec.Spec, withProgress bool, mem api.Memory, stack []uint64) int32 {
	c, spans := decodeArgs(spec.Shape, stack)
	if mem == nil || c.out == 0 {
		return CodeNullPointer
	}

	c.texts = make([]string, len(spans))
	for i, sp := range spans {
		if sp[0] == 0 && sp[1] > 0 {
			return CodeNullPointer
		}
		view, ok := mem.Read(sp[0], sp[1])
		if !ok {
			return CodeNullPointer
		}
		if !utf8.Valid(view) {
			return CodeText1UTF8 - int32(i)
		}
		c.texts[i] = string(view)
	}

	var report progressFunc
	if withProgress {
		report = percent(host.Progress.Report)
	}
	if c.seed == 0 {
		c.seed = host.Uint64()
	}

	words, rc := simulate(spec, c, report)
	if rc <= 0 {
		return rc
	}
	for i, w := range words {
		if !mem.WriteUint32Le(c.out+uint32(4*i), w) {
			return CodeOutputSmall
		}
	}
	return rc
}

// simulate runs the request and returns flattened records and their count,
// or a non-positive return code.
func simulate(spec codec.Spec, c call, report progressFunc) ([]uint32, int32) {
	if spec.Shape.Seeded() && c.trials == 0 {
		return nil, CodeInvalidInput
	}
	r := newRand(c.seed)
	var (
		words []uint32
		rc    int32
	)
	switch spec.Shape {
	case codec.ShapeVsList:
		words, rc = simulateVsList(spec, c, r, report)
	case codec.ShapeHandsBoard:
		words, rc = simulateHands(spec, c, r, report)
	case codec.ShapeRangeVsRange:
		words, rc = simulateRangeVsRange(c, r, report)
	case codec.ShapeOpenRanges:
		words, rc = simulateOpenRanges(c, r)
	case codec.ShapeRange:
		words, rc = expandRange(c)
	case codec.ShapeRanking:
		words, rc = rankHands(c)
	default:
		return nil, CodeInvalidInput
	}
	if rc > 0 && uint64(len(words)) > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}
	if rc > 0 {
		engine.Logger().Debug("reference engine finished",
			zap.String("export", spec.Export),
			zap.Int32("records", rc),
			zap.Uint32("trials", c.trials))
	}
	return words, rc
}

// parseHands parses a hand list of two-card hands, none sharing a card
// with each other or with board.
func parseHands(text string, board []card.Card) ([][]card.Card, bool) {
	groups, err := card.ParseHands(text)
	if err != nil || len(groups) == 0 {
		return nil, false
	}
	for _, g := range groups {
		if len(g) != 2 {
			return nil, false
		}
	}
	return groups, card.Disjoint(append(slices.Concat(groups...), board...))
}

func parseBoard(text string, minCards int) ([]card.Card, bool) {
	board, err := card.ParseList(text)
	if err != nil || len(board) < minCards || len(board) > 5 || !card.Disjoint(board) {
		return nil, false
	}
	return board, true
}

func simulateVsList(spec codec.Spec, c call, r *rand.Rand, report progressFunc) ([]uint32, int32) {
	hero, err := card.ParseList(c.texts[0])
	if err != nil || len(hero) != 2 {
		return nil, CodeInvalidInput
	}
	board, ok := parseBoard(c.texts[1], 0)
	if !ok {
		return nil, CodeInvalidInput
	}
	groups, err := card.ParseHands(c.texts[2])
	if err != nil || len(groups) == 0 {
		return nil, CodeInvalidInput
	}
	for _, opp := range groups {
		if len(opp) != 2 || !card.Disjoint(hero, board, opp) {
			return nil, CodeInvalidInput
		}
	}

	switch spec.Operation {
	case codec.OpVsListTrace:
		n := uint64(len(groups)) * uint64(c.trials)
		if n*uint64(spec.Width) > uint64(c.outWords) || n > uint64(^uint32(0)>>1) {
			return nil, CodeOutputSmall
		}
		words := make([]uint32, 0, n*uint64(spec.Width))
		vsList(r, hero, board, groups, c.trials, report, func(_ int, sd showdown) {
			words = append(words, uint32(sd.hero[0]), uint32(sd.hero[1]))
			for _, b := range sd.board {
				words = append(words, uint32(b))
			}
			words = append(words, uint32(sd.opp[0]), uint32(sd.opp[1]), sd.outcome, sd.rankIndex)
		})
		return words, int32(n)

	case codec.OpVsListMonteCarlo:
		if uint64(len(groups))*uint64(spec.Width) > uint64(c.outWords) {
			return nil, CodeOutputSmall
		}
		ranks := make([]rankSplit, len(groups))
		_, rows := vsList(r, hero, board, groups, c.trials, report, func(i int, sd showdown) {
			ranks[i].add(sd)
		})
		words := make([]uint32, 0, len(rows)*int(spec.Width))
		for i, row := range rows {
			words = append(words, uint32(groups[i][0]), uint32(groups[i][1]), row.wins, row.ties, row.plays)
			words = append(words, ranks[i].win[:]...)
			words = append(words, ranks[i].tie[:]...)
			words = append(words, ranks[i].lose[:]...)
		}
		return words, int32(len(rows))
	}

	if (uint64(len(groups))+1)*uint64(spec.Width) > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}
	heroRow, rows := vsList(r, hero, board, groups, c.trials, report, nil)
	words := make([]uint32, 0, (len(rows)+1)*int(spec.Width))
	appendRow := func(c1, c2 uint32, t tally) {
		words = append(words, c1, c2, t.wins, t.ties, t.plays)
		if spec.Histogram {
			words = append(words, t.hist[:]...)
		}
	}
	for i, row := range rows {
		appendRow(uint32(groups[i][0]), uint32(groups[i][1]), row)
	}
	appendRow(card.Sentinel, card.Sentinel, heroRow)
	return words, int32(len(rows) + 1)
}

func simulateHands(spec codec.Spec, c call, r *rand.Rand, report progressFunc) ([]uint32, int32) {
	minBoard := 0
	if spec.Operation == codec.OpRankDistribution {
		minBoard = 3
	}
	board, ok := parseBoard(c.texts[1], minBoard)
	if !ok {
		return nil, CodeInvalidInput
	}
	hands, ok := parseHands(c.texts[0], board)
	if !ok {
		return nil, CodeInvalidInput
	}

	if spec.Operation == codec.OpMultiHandEquity {
		if len(hands) < 3 || len(hands) > 6 {
			return nil, CodeInvalidInput
		}
		shares := multiway(r, hands, board, c.trials, report)
		words := make([]uint32, 0, len(hands)*int(spec.Width))
		for i, h := range hands {
			eq := math.Round(shares[i] / float64(c.trials) * codec.EquityScale)
			words = append(words, uint32(h[0]), uint32(h[1]), uint32(eq))
		}
		return words, int32(len(hands))
	}

	if uint64(len(hands))*histogramSize > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}
	hists := distribution(r, hands, board, c.trials, report)
	words := make([]uint32, 0, len(hists)*histogramSize)
	for _, h := range hists {
		words = append(words, h[:]...)
	}
	return words, int32(len(hists))
}

func simulateRangeVsRange(c call, r *rand.Rand, report progressFunc) ([]uint32, int32) {
	board, ok := parseBoard(c.texts[2], 0)
	if !ok {
		return nil, CodeInvalidInput
	}
	hero, err := card.ParseRange(c.texts[0])
	if err != nil {
		return nil, CodeInvalidInput
	}
	villain, err := card.ParseRange(c.texts[1])
	if err != nil {
		return nil, CodeInvalidInput
	}
	hero, villain = withoutCards(hero, board), withoutCards(villain, board)
	if len(hero) == 0 || len(villain) == 0 {
		return nil, 0
	}
	if 4*uint64(len(hero)+len(villain)) > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}

	heroEq, villainEq := rangeEquity(r, hero, villain, board, c.trials, report)
	words := make([]uint32, 0, 4*(len(hero)+len(villain)))
	for _, side := range []struct {
		combos []card.Combo
		eq     []float64
		role   uint32
	}{
		{hero, heroEq, codec.RoleHero},
		{villain, villainEq, codec.RoleVillain},
	} {
		for _, i := range byEquity(side.eq) {
			cb := side.combos[i]
			eq := math.Round(side.eq[i] * codec.EquityScale)
			words = append(words, uint32(cb[0]), uint32(cb[1]), uint32(eq), side.role)
		}
	}
	return words, int32(len(hero) + len(villain))
}

func simulateOpenRanges(c call, r *rand.Rand) ([]uint32, int32) {
	hero, err := card.ParseRange(c.texts[0])
	if err != nil || len(hero) == 0 {
		return nil, CodeInvalidInput
	}
	var opps [][]card.Combo
	for _, text := range strings.Split(c.texts[1], ";") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		combos, err := card.ParseRange(text)
		if err != nil || len(combos) == 0 {
			return nil, CodeInvalidInput
		}
		opps = append(opps, combos)
	}
	if len(opps) == 0 || len(opps) > 8 {
		return nil, CodeInvalidInput
	}
	if c.outWords < 3+histogramSize {
		return nil, CodeOutputSmall
	}
	t := openRanges(r, hero, opps, c.trials)
	words := append([]uint32{t.wins, t.ties, t.plays}, t.hist[:]...)
	return words, 1
}

func expandRange(c call) ([]uint32, int32) {
	combos, err := card.ParseRange(c.texts[0])
	if err != nil {
		return nil, CodeInvalidInput
	}
	if uint64(len(combos))*2 > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}
	words := make([]uint32, 0, 2*len(combos))
	for _, cb := range combos {
		words = append(words, uint32(cb[0]), uint32(cb[1]))
	}
	return words, int32(len(combos))
}

func rankHands(c call) ([]uint32, int32) {
	board, ok := parseBoard(c.texts[1], 3)
	if !ok {
		return nil, CodeInvalidInput
	}
	hands, ok := parseHands(c.texts[0], board)
	if !ok {
		return nil, CodeInvalidInput
	}
	if uint64(len(hands))*9 > uint64(c.outWords) {
		return nil, CodeOutputSmall
	}

	type ranked struct {
		c1, c2 card.Card
		score  int16
	}
	rows := make([]ranked, len(hands))
	for i, h := range hands {
		rows[i] = ranked{h[0], h[1], score(append(slices.Clone(board), h...))}
	}
	slices.SortStableFunc(rows, func(a, b ranked) int {
		return cmp.Or(cmp.Compare(b.score, a.score), cmp.Compare(a.c1, b.c1), cmp.Compare(a.c2, b.c2))
	})
	words := make([]uint32, 0, 9*len(rows))
	for _, row := range rows {
		k := kickers(row.score)
		words = append(words, uint32(row.c1), uint32(row.c2), uint32(categoryOf(row.score)), uint32(row.score))
		words = append(words, k[:]...)
	}
	return words, int32(len(rows))
}
