package codec

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/wippyai/simbridge/arena"
	"github.com/wippyai/simbridge/card"
	simerrors "github.com/wippyai/simbridge/errors"
	"github.com/wippyai/simbridge/internal/memtest"
)

func hand(s string) []card.Card { return card.MustParseList(s) }

func mustSpec(t *testing.T, op Operation) Spec {
	t.Helper()
	s, ok := Lookup(op)
	if !ok {
		t.Fatalf("unknown operation %s", op)
	}
	return s
}

func TestEquity(t *testing.T) {
	tests := []struct {
		wins, ties, plays uint32
		want              float64
	}{
		{7, 2, 10, 0.8},
		{0, 0, 0, 0},
		{0, 10, 10, 0.5},
		{10, 0, 10, 1},
		{0, 0, 10, 0},
	}
	for _, tt := range tests {
		if got := Equity(tt.wins, tt.ties, tt.plays); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Equity(%d, %d, %d) = %v, want %v", tt.wins, tt.ties, tt.plays, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	widths := map[Operation]uint32{
		OpVsListEquity:         5,
		OpVsListWithRanks:      14,
		OpVsListTrace:          11,
		OpVsListMonteCarlo:     32,
		OpRankDistribution:     9,
		OpMultiHandEquity:      3,
		OpRangeVsRangeEquity:   4,
		OpOpenRangesMonteCarlo: 12,
		OpParseRange:           2,
		OpEvaluateRanking:      9,
	}
	for op, width := range widths {
		s := mustSpec(t, op)
		if s.Width != width {
			t.Errorf("%s width = %d, want %d", op, s.Width, width)
		}
	}
	if _, ok := Lookup("simulateEverything"); ok {
		t.Error("Lookup accepted an unknown operation")
	}
	if len(Operations()) != len(widths) {
		t.Errorf("Operations() = %v", Operations())
	}
}

func TestShapeArity(t *testing.T) {
	tests := []struct {
		shape Shape
		arity int
		seed  int
	}{
		{ShapeVsList, 10, 7},
		{ShapeHandsBoard, 8, 5},
		{ShapeRangeVsRange, 10, 7},
		{ShapeOpenRanges, 8, 5},
		{ShapeRange, 4, -1},
		{ShapeRanking, 6, -1},
	}
	for _, tt := range tests {
		if got := tt.shape.Arity(); got != tt.arity {
			t.Errorf("shape %d arity = %d, want %d", tt.shape, got, tt.arity)
		}
		if got := tt.shape.SeedParam(); got != tt.seed {
			t.Errorf("shape %d seed param = %d, want %d", tt.shape, got, tt.seed)
		}
	}
}

func TestEncode(t *testing.T) {
	s := mustSpec(t, OpVsListEquity)
	seed := uint64(99)
	w := s.Encode(Request{
		Hero:    hand("As Ks"),
		Board:   hand("2c 7d 9h"),
		Compare: [][]card.Card{hand("Qc Qd"), hand("Jh Js")},
		Trials:  1000,
		Seed:    &seed,
	}, 5)

	if w.Hero != "As Ks" {
		t.Errorf("Hero = %q", w.Hero)
	}
	if w.Board != "2c 7d 9h" {
		t.Errorf("Board = %q", w.Board)
	}
	if w.Compare != "Qc Qd; Jh Js" {
		t.Errorf("Compare = %q", w.Compare)
	}
	if w.Groups != 2 || w.Seed != 99 || w.Trials != 1000 {
		t.Errorf("Groups=%d Seed=%d Trials=%d", w.Groups, w.Seed, w.Trials)
	}
	if got := s.Capacity(w); got != 15 {
		t.Errorf("Capacity = %d, want 15", got)
	}

	noSeed := s.Encode(Request{Hero: hand("As Ks"), Trials: 1}, 5)
	if noSeed.Board != "" || noSeed.Seed != 5 {
		t.Errorf("empty board %q, seed %d", noSeed.Board, noSeed.Seed)
	}
}

func TestEncodeSkipsBlankHands(t *testing.T) {
	s := mustSpec(t, OpRankDistribution)
	w := s.Encode(Request{Hands: [][]card.Card{{}, hand("As Ks"), nil}, Board: hand("2c 7d 9h")}, 0)
	if w.Compare != "As Ks" || w.Groups != 1 {
		t.Errorf("Compare = %q, Groups = %d", w.Compare, w.Groups)
	}
}

func TestEncodeRanges(t *testing.T) {
	open := mustSpec(t, OpOpenRangesMonteCarlo)
	w := open.Encode(Request{HeroRange: " AA ", OpponentRanges: []string{"KK", "  ", "QQ+"}, Trials: 5}, 0)
	if w.Hero != "AA" || w.Compare != "KK; QQ+" || w.Groups != 2 {
		t.Errorf("open ranges wire = %+v", w)
	}

	rvr := mustSpec(t, OpRangeVsRangeEquity)
	w = rvr.Encode(Request{HeroRange: "AKs", VillainRange: "22-44", Board: hand("2c 7d 9h"), Trials: 5}, 0)
	if w.Hero != "AKs" || w.Villain != "22-44" || w.Board != "2c 7d 9h" {
		t.Errorf("range vs range wire = %+v", w)
	}

	parse := mustSpec(t, OpParseRange)
	if w = parse.Encode(Request{Range: "\tJJ+ "}, 0); w.Hero != "JJ+" {
		t.Errorf("range wire = %+v", w)
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		op   Operation
		w    Wire
		want uint64
	}{
		{OpVsListTrace, Wire{Groups: 3, Trials: 4}, 3 * 4 * 11},
		{OpVsListWithRanks, Wire{Groups: 3}, 4 * 14},
		{OpVsListMonteCarlo, Wire{Groups: 3}, 3 * 32},
		{OpRankDistribution, Wire{Groups: 3, Trials: 4}, 27},
		{OpMultiHandEquity, Wire{Groups: 4}, 12},
		{OpRangeVsRangeEquity, Wire{}, 2 * card.MaxCombos * 4},
		{OpOpenRangesMonteCarlo, Wire{Groups: 8}, 12},
		{OpParseRange, Wire{}, card.MaxCombos * 2},
		{OpEvaluateRanking, Wire{Groups: 2}, 18},
	}
	for _, tt := range tests {
		if got := mustSpec(t, tt.op).Capacity(tt.w); got != tt.want {
			t.Errorf("%s capacity = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestDegenerate(t *testing.T) {
	vs := mustSpec(t, OpVsListWithRanks)
	dist := mustSpec(t, OpRankDistribution)
	multi := mustSpec(t, OpMultiHandEquity)
	rvr := mustSpec(t, OpRangeVsRangeEquity)
	open := mustSpec(t, OpOpenRangesMonteCarlo)
	parse := mustSpec(t, OpParseRange)
	rank := mustSpec(t, OpEvaluateRanking)
	threeHands := [][]card.Card{hand("As Ks"), hand("Qc Qd"), hand("7h 2d")}
	sevenHands := [][]card.Card{
		hand("As Ks"), hand("Qc Qd"), hand("7h 2d"), hand("Jh Js"),
		hand("Tc 9c"), hand("8d 8s"), hand("5h 4h"),
	}

	tests := []struct {
		name string
		spec Spec
		req  Request
		want bool
	}{
		{"full request", vs, Request{Hero: hand("As Ks"), Compare: [][]card.Card{hand("Qc Qd")}, Trials: 10}, false},
		{"no hero", vs, Request{Compare: [][]card.Card{hand("Qc Qd")}, Trials: 10}, true},
		{"single hero card", vs, Request{Hero: hand("As"), Compare: [][]card.Card{hand("Qc Qd")}, Trials: 10}, true},
		{"no opponents", vs, Request{Hero: hand("As Ks"), Trials: 10}, true},
		{"zero trials", vs, Request{Hero: hand("As Ks"), Compare: [][]card.Card{hand("Qc Qd")}}, true},
		{"distribution flop", dist, Request{Hands: [][]card.Card{hand("As Ks")}, Board: hand("2c 7d 9h"), Trials: 10}, false},
		{"distribution river", dist, Request{Hands: [][]card.Card{hand("As Ks")}, Board: hand("2c 7d 9h Th 3s"), Trials: 10}, false},
		{"distribution preflop", dist, Request{Hands: [][]card.Card{hand("As Ks")}, Trials: 10}, true},
		{"distribution no hands", dist, Request{Board: hand("2c 7d 9h"), Trials: 10}, true},
		{"distribution blank hands", dist, Request{Hands: [][]card.Card{{}, {}}, Board: hand("2c 7d 9h"), Trials: 10}, true},
		{"multi-hand three", multi, Request{Hands: threeHands, Trials: 10}, false},
		{"multi-hand two", multi, Request{Hands: threeHands[:2], Trials: 10}, true},
		{"multi-hand seven", multi, Request{Hands: sevenHands, Trials: 10}, true},
		{"multi-hand blank third", multi, Request{Hands: append(threeHands[:2:2], []card.Card{}), Trials: 10}, true},
		{"multi-hand river", multi, Request{Hands: threeHands, Board: hand("2c 7d 9h Th 3s"), Trials: 10}, false},
		{"range vs range", rvr, Request{HeroRange: "AA", VillainRange: "KK", Trials: 10}, false},
		{"range vs range blank villain", rvr, Request{HeroRange: "AA", VillainRange: " ", Trials: 10}, true},
		{"open ranges", open, Request{HeroRange: "AA", OpponentRanges: []string{"KK"}, Trials: 10}, false},
		{"open ranges no opponents", open, Request{HeroRange: "AA", OpponentRanges: []string{""}, Trials: 10}, true},
		{"parse range", parse, Request{Range: "AA"}, false},
		{"parse blank range", parse, Request{Range: " "}, true},
		{"ranking flop", rank, Request{Hands: threeHands, Board: hand("2c 7d 9h")}, false},
		{"ranking no board", rank, Request{Hands: threeHands}, true},
		{"ranking no hands", rank, Request{Board: hand("2c 7d 9h")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Degenerate(tt.spec.Encode(tt.req, 0)); got != tt.want {
				t.Errorf("Degenerate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmpty(t *testing.T) {
	res, ok := mustSpec(t, OpVsListEquity).Empty(Request{Hero: hand("As")}).(*SimulationResult)
	if !ok {
		t.Fatal("vs-list empty result has wrong type")
	}
	if res.HeroEquity != 0 || res.PerOpponent == nil || len(res.PerOpponent) != 0 {
		t.Errorf("empty result = %+v", res)
	}
	data, _ := json.Marshal(res)
	if string(data) != `{"hand":"As","equity":0,"data":[]}` {
		t.Errorf("JSON = %s", data)
	}

	if _, ok := mustSpec(t, OpVsListTrace).Empty(Request{}).([]TraceEntry); !ok {
		t.Error("trace empty result has wrong type")
	}
	if _, ok := mustSpec(t, OpRankDistribution).Empty(Request{}).([]RankDistributionEntry); !ok {
		t.Error("distribution empty result has wrong type")
	}
}

func TestWriteLayout(t *testing.T) {
	mem := memtest.New(1, 4)
	a := arena.New(mem, 1024)
	s := mustSpec(t, OpVsListEquity)
	w := s.Encode(Request{
		Hero:    hand("As Ks"),
		Board:   hand("2c 7d 9h"),
		Compare: [][]card.Card{hand("Qc Qd")},
		Trials:  500,
	}, 7)

	l, err := s.Write(a, w)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name string
		off  uint32
		n    uint32
		want string
	}{
		{"hero", l.Texts[0].Offset, l.Texts[0].Length, "As Ks"},
		{"board", l.Texts[1].Offset, l.Texts[1].Length, "2c 7d 9h"},
		{"compare", l.Texts[2].Offset, l.Texts[2].Length, "Qc Qd"},
	} {
		got, _ := mem.Read(c.off, c.n)
		if string(got) != c.want {
			t.Errorf("%s region holds %q, want %q", c.name, got, c.want)
		}
	}
	if l.Out%4 != 0 || l.Out < l.Texts[2].End() {
		t.Errorf("output offset %d misplaced", l.Out)
	}
	if l.OutWords != 10 {
		t.Errorf("OutWords = %d, want 10", l.OutWords)
	}

	p := s.Params(l, w)
	if len(p) != 10 || p[6] != 500 || p[7] != 7 || p[8] != uint64(l.Out) || p[9] != 10 {
		t.Errorf("Params = %v", p)
	}

	// A second request never overlaps the first.
	l2, err := s.Write(a, w)
	if err != nil {
		t.Fatal(err)
	}
	if l2.Texts[0].Offset < l.Out+l.OutWords*4 {
		t.Errorf("second layout starts at %d inside first", l2.Texts[0].Offset)
	}
}

func TestWriteDistributionLayout(t *testing.T) {
	mem := memtest.New(1, 4)
	s := mustSpec(t, OpRankDistribution)
	w := s.Encode(Request{Hands: [][]card.Card{hand("As Ks"), hand("Qc Qd")}, Board: hand("2c 7d 9h"), Trials: 3}, 1)
	l, err := s.Write(arena.New(mem, 1024), w)
	if err != nil {
		t.Fatal(err)
	}
	p := s.Params(l, w)
	if len(p) != 8 {
		t.Fatalf("Params len = %d", len(p))
	}
	got, _ := mem.Read(uint32(p[0]), uint32(p[1]))
	if string(got) != "As Ks; Qc Qd" {
		t.Errorf("hands region = %q", got)
	}
	if p[7] != 18 {
		t.Errorf("out words = %d, want 18", p[7])
	}
}

func TestWriteUnseededLayouts(t *testing.T) {
	mem := memtest.New(1, 4)
	a := arena.New(mem, 1024)

	parse := mustSpec(t, OpParseRange)
	w := parse.Encode(Request{Range: "QQ+"}, 9)
	l, err := parse.Write(a, w)
	if err != nil {
		t.Fatal(err)
	}
	p := parse.Params(l, w)
	if len(p) != 4 || p[2] != uint64(l.Out) || p[3] != card.MaxCombos*2 {
		t.Errorf("range Params = %v", p)
	}
	if got, _ := mem.Read(uint32(p[0]), uint32(p[1])); string(got) != "QQ+" {
		t.Errorf("range region = %q", got)
	}

	rank := mustSpec(t, OpEvaluateRanking)
	w = rank.Encode(Request{Hands: [][]card.Card{hand("As Ks")}, Board: hand("2c 7d 9h")}, 9)
	l, err = rank.Write(a, w)
	if err != nil {
		t.Fatal(err)
	}
	p = rank.Params(l, w)
	if len(p) != 6 || p[5] != 9 {
		t.Errorf("ranking Params = %v", p)
	}
	if got, _ := mem.Read(uint32(p[2]), uint32(p[3])); string(got) != "2c 7d 9h" {
		t.Errorf("board region = %q", got)
	}
}

func TestCheck(t *testing.T) {
	eq := mustSpec(t, OpVsListEquity)
	trace := mustSpec(t, OpVsListTrace)
	l := Layout{OutWords: 10}

	if _, err := eq.Check(eq.Export, -5, l); !errors.Is(err, simerrors.ErrModuleFailure) {
		t.Errorf("negative rc: err = %v", err)
	} else if code, _ := err.(*simerrors.Error).Code(); code != -5 {
		t.Errorf("code = %d, want -5", code)
	}
	if _, err := eq.Check(eq.Export, 0, l); !errors.Is(err, simerrors.ErrEmptyResult) {
		t.Errorf("zero rc: err = %v", err)
	}
	if n, err := trace.Check(trace.Export, 0, Layout{OutWords: 11}); err != nil || n != 0 {
		t.Errorf("trace zero rc = %d, %v", n, err)
	}
	if n, err := eq.Check(eq.Export, 2, l); err != nil || n != 2 {
		t.Errorf("rc 2 = %d, %v", n, err)
	}
	if _, err := eq.Check(eq.Export, 3, l); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("overflowing rc: err = %v", err)
	}
}

func words(cards ...string) []uint32 {
	out := make([]uint32, len(cards))
	for i, c := range cards {
		v, _ := card.Encode(c)
		out[i] = uint32(v)
	}
	return out
}

func TestDecodeVsList(t *testing.T) {
	s := mustSpec(t, OpVsListWithRanks)
	req := Request{
		Hero:    hand("As Ks"),
		Compare: [][]card.Card{hand("Qc Qd"), hand("7h 2d")},
		Trials:  10,
		Options: Options{Detail: true},
	}

	heroRow := Record{card.Sentinel, card.Sentinel, 13, 2, 20, 0, 8, 6, 2, 1, 1, 1, 1, 0}
	qq := append(Record(words("Qc", "Qd")), 5, 1, 10, 0, 6, 2, 2, 0, 0, 0, 0, 0)
	sevenTwo := append(Record(words("7h", "2d")), 8, 1, 10, 3, 5, 1, 1, 0, 0, 0, 0, 0)

	out, err := s.Decode([]Record{sevenTwo, heroRow, qq}, req)
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*SimulationResult)

	if math.Abs(res.HeroEquity-Equity(13, 2, 20)) > 1e-12 {
		t.Errorf("HeroEquity = %v", res.HeroEquity)
	}
	if res.Hand != "As Ks" {
		t.Errorf("Hand = %q", res.Hand)
	}
	if len(res.PerOpponent) != 2 {
		t.Fatalf("PerOpponent = %+v", res.PerOpponent)
	}
	// QQ: opp wins 4, ties 1 => 0.45; 72o: opp wins 1, ties 1 => 0.15.
	if res.PerOpponent[0].Hand != "QcQd" || res.PerOpponent[0].Wins != 4 {
		t.Errorf("first row = %+v", res.PerOpponent[0])
	}
	if math.Abs(res.PerOpponent[0].Equity-0.45) > 1e-12 || math.Abs(res.PerOpponent[1].Equity-0.15) > 1e-12 {
		t.Errorf("equities = %v, %v", res.PerOpponent[0].Equity, res.PerOpponent[1].Equity)
	}
	for _, r := range append(res.PerOpponent, *res.Hero) {
		if r.Histogram == nil || r.Histogram.Total() != uint64(r.Plays) {
			t.Errorf("%s histogram %v does not sum to plays %d", r.Hand, r.Histogram, r.Plays)
		}
	}

	// Without detail only the aggregate survives.
	req.Options.Detail = false
	out, err = s.Decode([]Record{heroRow, qq}, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.(*SimulationResult).PerOpponent) != 0 {
		t.Error("rows returned without detail")
	}

	// The hero row is mandatory for the ranked operation.
	if _, err := s.Decode([]Record{qq}, req); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("missing hero: err = %v", err)
	}
}

func TestDecodeEquityWithoutHeroRow(t *testing.T) {
	s := mustSpec(t, OpVsListEquity)
	req := Request{
		Hero:    hand("As Ks"),
		Compare: [][]card.Card{hand("Qc Qd"), hand("Jh Js")},
		Options: Options{Detail: true},
	}
	a := append(Record(words("Qc", "Qd")), 6, 0, 10)
	b := append(Record(words("Jh", "Js")), 7, 2, 10)

	out, err := s.Decode([]Record{a, b}, req)
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*SimulationResult)
	if res.HeroEquity != 0 || res.Hero != nil {
		t.Errorf("HeroEquity = %v, Hero = %+v, want 0 and no hero", res.HeroEquity, res.Hero)
	}
	if len(res.PerOpponent) != 2 || res.PerOpponent[0].Hand != "QcQd" {
		t.Errorf("PerOpponent = %+v", res.PerOpponent)
	}
}

func TestDecodeInvalidCard(t *testing.T) {
	s := mustSpec(t, OpVsListEquity)
	bad := Record{60, 1, 1, 0, 1}
	_, err := s.Decode([]Record{bad}, Request{Options: Options{Detail: true}})
	if !errors.Is(err, simerrors.ErrInvalidEncoding) {
		t.Errorf("err = %v, want invalid encoding", err)
	}
}

func TestDecodeTrace(t *testing.T) {
	s := mustSpec(t, OpVsListTrace)
	r := append(Record(words("As", "Ks", "2c", "7d", "9h", "Th", "3s", "Qc", "Qd")), 1, 1)
	out, err := s.Decode([]Record{r}, Request{})
	if err != nil {
		t.Fatal(err)
	}
	entries := out.([]TraceEntry)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}
	e := entries[0]
	if e.Hero != "AsKs" || e.Villain != "QcQd" || len(e.Board) != 5 || e.Board[4] != "3s" {
		t.Errorf("entry = %+v", e)
	}
	if e.Outcome != OutcomeVillain || e.Rank != "One Pair" {
		t.Errorf("outcome %v rank %q", e.Outcome, e.Rank)
	}

	data, _ := json.Marshal(e)
	var back TraceEntry
	if err := json.Unmarshal(data, &back); err != nil || back.Outcome != OutcomeVillain {
		t.Errorf("outcome JSON round trip: %s, %v", data, err)
	}

	badOutcome := append(Record(words("As", "Ks", "2c", "7d", "9h", "Th", "3s", "Qc", "Qd")), 3, 1)
	if _, err := s.Decode([]Record{badOutcome}, Request{}); err == nil {
		t.Error("unknown outcome accepted")
	}
}

func TestDecodeDistribution(t *testing.T) {
	s := mustSpec(t, OpRankDistribution)
	req := Request{Hands: [][]card.Card{hand("As Ks"), hand("Qc Qd")}}
	out, err := s.Decode([]Record{{1, 2, 3, 4, 5, 6, 7, 8, 9}, {9, 0, 0, 0, 0, 0, 0, 0, 1}}, req)
	if err != nil {
		t.Fatal(err)
	}
	entries := out.([]RankDistributionEntry)
	if entries[0].Hand != "AsKs" || entries[0].Results[8] != 9 {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Results.Total() != 10 {
		t.Errorf("entry 1 total = %d", entries[1].Results.Total())
	}
}

func TestDecodeDistributionSkipsBlankHands(t *testing.T) {
	s := mustSpec(t, OpRankDistribution)
	req := Request{Hands: [][]card.Card{{}, hand("As Ks")}, Board: hand("2c 7d 9h"), Trials: 4}
	out, err := s.Decode([]Record{{1, 1, 1, 0, 0, 0, 1, 0, 0}}, req)
	if err != nil {
		t.Fatal(err)
	}
	entries := out.([]RankDistributionEntry)
	if len(entries) != 1 || entries[0].Hand != "AsKs" {
		t.Errorf("entries = %+v", entries)
	}

	two := Record{1, 1, 1, 0, 0, 0, 1, 0, 0}
	if _, err := s.Decode([]Record{two, two}, req); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("more records than hands: err = %v", err)
	}
}

func TestDecodeMonteCarlo(t *testing.T) {
	s := mustSpec(t, OpVsListMonteCarlo)
	req := Request{Hero: hand("As Ks"), Compare: [][]card.Card{hand("Qc Qd"), hand("7h 2d")}}

	row := func(c1, c2 string, heroWins, ties, plays uint32) Record {
		r := make(Record, s.Width)
		copy(r, words(c1, c2))
		r[fieldWins], r[fieldTies], r[fieldPlays] = heroWins, ties, plays
		r[fieldHist+1] = heroWins
		r[fieldHist+Categories] = ties
		r[fieldHist+2*Categories+8] = plays - heroWins - ties
		return r
	}
	out, err := s.Decode([]Record{row("7h", "2d", 9, 0, 10), row("Qc", "Qd", 4, 2, 10)}, req)
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*MonteCarloResult)
	if res.Hand != "As Ks" || math.Abs(res.HeroEquity-0.7) > 1e-12 {
		t.Errorf("hero = %q %v", res.Hand, res.HeroEquity)
	}
	if len(res.Data) != 2 || res.Data[0].Hand != "QcQd" || res.Data[0].Wins != 4 {
		t.Fatalf("data = %+v", res.Data)
	}
	if res.Data[0].WinRanks[1] != 4 || res.Data[0].TieRanks[0] != 2 || res.Data[0].LoseRanks[8] != 4 {
		t.Errorf("histograms = %v %v %v", res.Data[0].WinRanks, res.Data[0].TieRanks, res.Data[0].LoseRanks)
	}
}

func TestDecodeMultiHand(t *testing.T) {
	s := mustSpec(t, OpMultiHandEquity)
	req := Request{Hands: [][]card.Card{hand("As Ks"), {}, hand("Qc Qd"), hand("7h 2d")}}
	recs := []Record{
		append(Record(words("As", "Ks")), 400_000),
		append(Record(words("Qc", "Qd")), 450_000),
		append(Record(words("7h", "2d")), 150_000),
	}
	out, err := s.Decode(recs, req)
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*MultiHandResult)
	if len(res.Data) != 3 || res.Data[1].Hand != "QcQd" || res.Data[1].Equity != 0.45 {
		t.Errorf("data = %+v", res.Data)
	}

	bad := append(Record(words("As", "Ks")), EquityScale+1)
	if _, err := s.Decode([]Record{bad}, req); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("equity above scale: err = %v", err)
	}
}

func TestDecodeRangeVsRange(t *testing.T) {
	s := mustSpec(t, OpRangeVsRangeEquity)
	recs := []Record{
		append(Record(words("Ah", "As")), 600_000, RoleHero),
		append(Record(words("Kh", "Ks")), 300_000, RoleVillain),
		append(Record(words("Ad", "Ac")), 800_000, RoleHero),
	}
	out, err := s.Decode(recs, Request{})
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*RangeVsRangeResult)
	if len(res.Hero) != 2 || res.Hero[0].Hand != "AdAc" || res.Hero[0].Equity != 0.8 {
		t.Errorf("hero = %+v", res.Hero)
	}
	if len(res.Villain) != 1 || res.Villain[0].Equity != 0.3 {
		t.Errorf("villain = %+v", res.Villain)
	}

	bad := append(Record(words("Ah", "As")), 1, 2)
	if _, err := s.Decode([]Record{bad}, Request{}); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("unknown role: err = %v", err)
	}
}

func TestDecodeOpenRanges(t *testing.T) {
	s := mustSpec(t, OpOpenRangesMonteCarlo)
	req := Request{HeroRange: "AA", OpponentRanges: []string{"KK", "", "QQ"}, Trials: 10}

	r := Record{6, 2, 10, 0, 3, 2, 1, 0, 0, 0, 0, 0}
	out, err := s.Decode([]Record{r}, req)
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*OpenRangesResult)
	if res.HeroRange != "AA" || len(res.OpponentRanges) != 2 {
		t.Errorf("ranges = %q %q", res.HeroRange, res.OpponentRanges)
	}
	if math.Abs(res.Equity-0.7) > 1e-12 || res.RankWins.Total() != 6 {
		t.Errorf("equity %v rank wins %v", res.Equity, res.RankWins)
	}

	out, err = s.Decode(nil, req)
	if err != nil || out.(*OpenRangesResult).Plays != 0 {
		t.Errorf("no records = %+v, %v", out, err)
	}

	over := Record{8, 3, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := s.Decode([]Record{over}, req); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("wins and ties above plays: err = %v", err)
	}
}

func TestDecodeRange(t *testing.T) {
	s := mustSpec(t, OpParseRange)
	recs := []Record{words("Ah", "As"), words("Kd", "Ah"), words("Kh", "Ks")}
	out, err := s.Decode(recs, Request{Dead: hand("Ks")})
	if err != nil {
		t.Fatal(err)
	}
	combos := out.([]card.Combo)
	if len(combos) != 2 || combos[1].String() != "AhKd" {
		t.Errorf("combos = %v", combos)
	}
	data, _ := json.Marshal(combos[:1])
	if string(data) != `[["Ah","As"]]` {
		t.Errorf("JSON = %s", data)
	}

	if _, err := s.Decode([]Record{{3, 3}}, Request{}); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("repeated card: err = %v", err)
	}
	if _, err := s.Decode([]Record{{60, 3}}, Request{}); !errors.Is(err, simerrors.ErrInvalidEncoding) {
		t.Errorf("bad card: err = %v", err)
	}
}

func TestDecodeRanking(t *testing.T) {
	s := mustSpec(t, OpEvaluateRanking)
	req := Request{Hands: [][]card.Card{hand("As Ks")}, Board: hand("Ad 7d 9h")}
	r := append(Record(words("As", "Ks")), 1, 3500, 12, 12, 11, 7, 5)
	out, err := s.Decode([]Record{r}, req)
	if err != nil {
		t.Fatal(err)
	}
	got := out.([]HandRanking)
	if len(got) != 1 || got[0].Rank != "One Pair" || got[0].Score != 3500 || got[0].Kickers[2] != 11 {
		t.Errorf("ranking = %+v", got)
	}

	badKicker := append(Record(words("As", "Ks")), 1, 3500, 13, 12, 11, 7, 5)
	if _, err := s.Decode([]Record{badKicker}, req); !errors.Is(err, simerrors.ErrProtocol) {
		t.Errorf("bad kicker: err = %v", err)
	}
}

func TestHistogramJSON(t *testing.T) {
	h := Histogram{1, 2, 3, 4, 5, 6, 7, 8, 9}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"High Card":1,"One Pair":2,"Two Pair":3,"Three of a Kind":4,"Straight":5,"Flush":6,"Full House":7,"Four of a Kind":8,"Straight Flush":9}`
	if string(data) != want {
		t.Errorf("Marshal = %s", data)
	}
	var back Histogram
	if err := json.Unmarshal(data, &back); err != nil || back != h {
		t.Errorf("Unmarshal = %v, %v", back, err)
	}
	if err := json.Unmarshal([]byte(`{"Royal":1}`), &back); err == nil {
		t.Error("unknown label accepted")
	}
	if v, ok := h.Get("Full House"); !ok || v != 7 {
		t.Errorf("Get = %d, %v", v, ok)
	}
}

func TestReadRecords(t *testing.T) {
	mem := memtest.New(1, 1)
	if err := mem.WriteWords(2048, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10); err != nil {
		t.Fatal(err)
	}
	recs, err := ReadRecords(mem, 2048, 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1][0] != 6 || recs[1][4] != 10 {
		t.Errorf("records = %v", recs)
	}
	if recs, err := ReadRecords(mem, 2048, 0, 5); err != nil || recs != nil {
		t.Errorf("zero records = %v, %v", recs, err)
	}
	if _, err := ReadRecords(mem, 65530, 1, 5); err == nil {
		t.Error("read past end accepted")
	}
}
