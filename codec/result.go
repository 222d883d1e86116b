package codec

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/wippyai/simbridge/card"
	simerrors "github.com/wippyai/simbridge/errors"
)

// HandResult is one hand's outcome counts and equity.
type HandResult struct {
	Hand      string     `json:"hand"`
	Equity    float64    `json:"equity"`
	Wins      uint32     `json:"wins"`
	Ties      uint32     `json:"ties"`
	Plays     uint32     `json:"plays"`
	Histogram *Histogram `json:"results,omitempty"`
}

// SimulationResult is the decoded outcome of a vs-list simulation.
// PerOpponent is sorted by equity, highest first.
type SimulationResult struct {
	Hand        string       `json:"hand"`
	HeroEquity  float64      `json:"equity"`
	Hero        *HandResult  `json:"hero,omitempty"`
	PerOpponent []HandResult `json:"data"`
}

// Outcome is the winner of a traced showdown.
type Outcome uint32

const (
	OutcomeHero    Outcome = 0
	OutcomeVillain Outcome = 1
	OutcomeTie     Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHero:
		return "hero"
	case OutcomeVillain:
		return "villain"
	case OutcomeTie:
		return "tie"
	default:
		return fmt.Sprintf("outcome(%d)", uint32(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if o > OutcomeTie {
		return nil, simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
			Value(uint32(o)).
			Detail("unknown outcome %d", uint32(o)).
			Build()
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, v := range []Outcome{OutcomeHero, OutcomeVillain, OutcomeTie} {
		if v.String() == string(text) {
			*o = v
			return nil
		}
	}
	return simerrors.InvalidInput(simerrors.PhaseDecode, fmt.Sprintf("unknown outcome %q", text))
}

// TraceEntry is one sampled showdown.
type TraceEntry struct {
	Hero      string   `json:"hero"`
	Board     []string `json:"board"`
	Villain   string   `json:"villain"`
	Outcome   Outcome  `json:"outcome"`
	RankIndex uint32   `json:"rankIndex"`
	Rank      string   `json:"rank"`
}

// RankDistributionEntry is the category histogram for one requested hand.
type RankDistributionEntry struct {
	Hand    string    `json:"hand"`
	Results Histogram `json:"results"`
}

// EquityScale is the fixed-point scale of equity words.
const EquityScale = 1_000_000

// MultiHandEntry is one hand's share of a multi-way pot.
type MultiHandEntry struct {
	Hand   string  `json:"hand"`
	Equity float64 `json:"equity"`
}

// MultiHandResult is the decoded outcome of a multi-hand equity run, in
// request order.
type MultiHandResult struct {
	Data []MultiHandEntry `json:"data"`
}

// RangeEquityEntry is the equity of one combo of a range against the
// other range.
type RangeEquityEntry struct {
	Hand   string  `json:"hand"`
	Equity float64 `json:"equity"`
}

// RangeVsRangeResult lists per-combo equity for both ranges, highest first.
type RangeVsRangeResult struct {
	Hero    []RangeEquityEntry `json:"hero"`
	Villain []RangeEquityEntry `json:"villain"`
}

// Range roles in range-vs-range records.
const (
	RoleHero    = 0
	RoleVillain = 1
)

// OpenRangesResult is the outcome of a hero range against opponent ranges
// with no board. RankWins counts hero wins by the hero's hand category.
type OpenRangesResult struct {
	HeroRange      string    `json:"heroRange"`
	OpponentRanges []string  `json:"opponentRanges"`
	Wins           uint32    `json:"wins"`
	Ties           uint32    `json:"ties"`
	Plays          uint32    `json:"plays"`
	Equity         float64   `json:"equity"`
	RankWins       Histogram `json:"rankWins"`
}

// MonteCarloEntry is one opponent of a vs-list Monte Carlo run. Counts and
// equity are the opponent's; the rank histograms split the hero's wins and
// ties by the hero's category and the hero's losses by the winner's.
type MonteCarloEntry struct {
	Hand      string    `json:"hand"`
	Equity    float64   `json:"equity"`
	Wins      uint32    `json:"wins"`
	Ties      uint32    `json:"ties"`
	Plays     uint32    `json:"plays"`
	WinRanks  Histogram `json:"winRanks"`
	TieRanks  Histogram `json:"tieRanks"`
	LoseRanks Histogram `json:"loseRanks"`
}

// MonteCarloResult is the decoded outcome of a vs-list Monte Carlo run.
// The hero's equity aggregates every opponent row.
type MonteCarloResult struct {
	Hand       string            `json:"hand"`
	HeroEquity float64           `json:"equity"`
	Data       []MonteCarloEntry `json:"data"`
}

// HandRanking is one hand's made hand on a board. Higher Score wins.
// Kickers are rank indices of the best five cards by significance.
type HandRanking struct {
	Hand      string    `json:"hand"`
	RankIndex uint32    `json:"rankIndex"`
	Rank      string    `json:"rank"`
	Score     uint32    `json:"score"`
	Kickers   [5]uint32 `json:"kickers"`
}

// Empty returns the result for a degenerate request.
func (s Spec) Empty(req Request) any {
	switch s.Operation {
	case OpVsListTrace:
		return []TraceEntry{}
	case OpVsListMonteCarlo:
		return &MonteCarloResult{Hand: card.Join(req.Hero), Data: []MonteCarloEntry{}}
	case OpRankDistribution:
		return []RankDistributionEntry{}
	case OpMultiHandEquity:
		return &MultiHandResult{Data: []MultiHandEntry{}}
	case OpRangeVsRangeEquity:
		return &RangeVsRangeResult{Hero: []RangeEquityEntry{}, Villain: []RangeEquityEntry{}}
	case OpOpenRangesMonteCarlo:
		return &OpenRangesResult{
			HeroRange:      strings.TrimSpace(req.HeroRange),
			OpponentRanges: LiveRanges(req.OpponentRanges),
		}
	case OpParseRange:
		return []card.Combo{}
	case OpEvaluateRanking:
		return []HandRanking{}
	default:
		return &SimulationResult{Hand: card.Join(req.Hero), PerOpponent: []HandResult{}}
	}
}

// Decode builds the operation's result from engine records.
func (s Spec) Decode(records []Record, req Request) (any, error) {
	switch s.Operation {
	case OpVsListTrace:
		return s.decodeTrace(records)
	case OpVsListMonteCarlo:
		return s.decodeMonteCarlo(records, req)
	case OpRankDistribution:
		return s.decodeDistribution(records, req)
	case OpMultiHandEquity:
		return s.decodeMultiHand(records, req)
	case OpRangeVsRangeEquity:
		return s.decodeRangeVsRange(records)
	case OpOpenRangesMonteCarlo:
		return s.decodeOpenRanges(records, req)
	case OpParseRange:
		return s.decodeRange(records, req)
	case OpEvaluateRanking:
		return s.decodeRanking(records, req)
	default:
		return s.decodeVsList(records, req)
	}
}

func (s Spec) recordError(i int, err error) error {
	return simerrors.New(simerrors.PhaseDecode, simerrors.KindInvalidEncoding).
		Export(s.Export).
		Path("records", fmt.Sprint(i)).
		Cause(err).
		Build()
}

func (s Spec) protocolError(format string, args ...any) error {
	return simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
		Export(s.Export).
		Detail(format, args...).
		Build()
}

// checkCount rejects more records than the request has groups.
func (s Spec) checkCount(records []Record, groups int) error {
	if len(records) > groups {
		return s.protocolError("%d records for %d hands", len(records), groups)
	}
	return nil
}

func (s Spec) decodeVsList(records []Record, req Request) (*SimulationResult, error) {
	res := &SimulationResult{Hand: card.Join(req.Hero), PerOpponent: []HandResult{}}

	for i, r := range records {
		if r.IsHero() {
			hero := HandResult{
				Hand:   card.Label(req.Hero),
				Wins:   r[fieldWins],
				Ties:   r[fieldTies],
				Plays:  r[fieldPlays],
				Equity: Equity(r[fieldWins], r[fieldTies], r[fieldPlays]),
			}
			if s.Histogram {
				h := histogramAt(r, fieldHist)
				hero.Histogram = &h
			}
			res.Hero = &hero
			continue
		}

		hand, err := r.Hand()
		if err != nil {
			return nil, s.recordError(i, err)
		}
		if !req.Options.Detail {
			continue
		}
		heroWins, ties, plays := r[fieldWins], r[fieldTies], r[fieldPlays]
		row := HandResult{
			Hand:  hand,
			Ties:  ties,
			Plays: plays,
		}
		row.Wins = opponentWins(heroWins, ties, plays)
		row.Equity = Equity(row.Wins, ties, plays)
		if s.Histogram {
			h := histogramAt(r, fieldHist)
			row.Histogram = &h
		}
		res.PerOpponent = append(res.PerOpponent, row)
	}

	// Without a hero row the hero's equity stays 0.
	switch {
	case res.Hero != nil:
		res.HeroEquity = res.Hero.Equity
	case s.RequireHero:
		return nil, s.protocolError("hero aggregate row missing")
	}

	slices.SortStableFunc(res.PerOpponent, func(a, b HandResult) int {
		return cmp.Compare(b.Equity, a.Equity)
	})
	return res, nil
}

func opponentWins(heroWins, ties, plays uint32) uint32 {
	if uint64(plays) > uint64(heroWins)+uint64(ties) {
		return plays - heroWins - ties
	}
	return 0
}

func (s Spec) decodeTrace(records []Record) ([]TraceEntry, error) {
	entries := make([]TraceEntry, 0, len(records))
	for i, r := range records {
		e, err := traceEntry(r)
		if err != nil {
			return nil, s.recordError(i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func traceEntry(r Record) (TraceEntry, error) {
	var words [traceRank + 1]string
	for i := traceHero1; i < traceOutcome; i++ {
		s, err := card.Decode(r[i])
		if err != nil {
			return TraceEntry{}, err
		}
		words[i] = s
	}
	outcome := Outcome(r[traceOutcome])
	if outcome > OutcomeTie {
		return TraceEntry{}, simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
			Value(r[traceOutcome]).
			Detail("unknown outcome %d", r[traceOutcome]).
			Build()
	}
	rank, err := categoryAt(r, traceRank)
	if err != nil {
		return TraceEntry{}, err
	}
	return TraceEntry{
		Hero:      words[traceHero1] + words[traceHero1+1],
		Board:     append([]string(nil), words[traceBoard:traceOpp1]...),
		Villain:   words[traceOpp1] + words[traceOpp1+1],
		Outcome:   outcome,
		RankIndex: rank,
		Rank:      CategoryLabels[rank],
	}, nil
}

func categoryAt(r Record, at int) (uint32, error) {
	rank := r[at]
	if rank >= Categories {
		return 0, simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
			Value(rank).
			Detail("rank index %d out of range", rank).
			Build()
	}
	return rank, nil
}

func (s Spec) decodeMonteCarlo(records []Record, req Request) (*MonteCarloResult, error) {
	res := &MonteCarloResult{Hand: card.Join(req.Hero), Data: make([]MonteCarloEntry, 0, len(records))}
	if err := s.checkCount(records, len(LiveHands(req.Compare))); err != nil {
		return nil, err
	}
	var sumWins, sumTies, sumPlays uint64
	for i, r := range records {
		hand, err := r.Hand()
		if err != nil {
			return nil, s.recordError(i, err)
		}
		heroWins, ties, plays := r[fieldWins], r[fieldTies], r[fieldPlays]
		sumWins += uint64(heroWins)
		sumTies += uint64(ties)
		sumPlays += uint64(plays)

		e := MonteCarloEntry{
			Hand:      hand,
			Wins:      opponentWins(heroWins, ties, plays),
			Ties:      ties,
			Plays:     plays,
			WinRanks:  histogramAt(r, fieldHist),
			TieRanks:  histogramAt(r, fieldHist+Categories),
			LoseRanks: histogramAt(r, fieldHist+2*Categories),
		}
		e.Equity = Equity(e.Wins, ties, plays)
		res.Data = append(res.Data, e)
	}
	if sumPlays > 0 {
		res.HeroEquity = (float64(sumWins) + float64(sumTies)/2) / float64(sumPlays)
	}
	slices.SortStableFunc(res.Data, func(a, b MonteCarloEntry) int {
		return cmp.Compare(b.Equity, a.Equity)
	})
	return res, nil
}

func (s Spec) decodeDistribution(records []Record, req Request) ([]RankDistributionEntry, error) {
	hands := LiveHands(req.Hands)
	if err := s.checkCount(records, len(hands)); err != nil {
		return nil, err
	}
	entries := make([]RankDistributionEntry, len(records))
	for i, r := range records {
		entries[i] = RankDistributionEntry{
			Hand:    card.Label(hands[i]),
			Results: histogramAt(r, 0),
		}
	}
	return entries, nil
}

func (s Spec) decodeMultiHand(records []Record, req Request) (*MultiHandResult, error) {
	if err := s.checkCount(records, len(LiveHands(req.Hands))); err != nil {
		return nil, err
	}
	res := &MultiHandResult{Data: make([]MultiHandEntry, len(records))}
	for i, r := range records {
		hand, err := r.Hand()
		if err != nil {
			return nil, s.recordError(i, err)
		}
		if r[2] > EquityScale {
			return nil, s.protocolError("equity word %d above scale", r[2])
		}
		res.Data[i] = MultiHandEntry{Hand: hand, Equity: float64(r[2]) / EquityScale}
	}
	return res, nil
}

func (s Spec) decodeRangeVsRange(records []Record) (*RangeVsRangeResult, error) {
	res := &RangeVsRangeResult{Hero: []RangeEquityEntry{}, Villain: []RangeEquityEntry{}}
	for i, r := range records {
		hand, err := r.Hand()
		if err != nil {
			return nil, s.recordError(i, err)
		}
		if r[2] > EquityScale {
			return nil, s.protocolError("equity word %d above scale", r[2])
		}
		e := RangeEquityEntry{Hand: hand, Equity: float64(r[2]) / EquityScale}
		switch r[3] {
		case RoleHero:
			res.Hero = append(res.Hero, e)
		case RoleVillain:
			res.Villain = append(res.Villain, e)
		default:
			return nil, s.protocolError("unknown range role %d", r[3])
		}
	}
	byEquity := func(a, b RangeEquityEntry) int { return cmp.Compare(b.Equity, a.Equity) }
	slices.SortStableFunc(res.Hero, byEquity)
	slices.SortStableFunc(res.Villain, byEquity)
	return res, nil
}

func (s Spec) decodeOpenRanges(records []Record, req Request) (*OpenRangesResult, error) {
	res := s.Empty(req).(*OpenRangesResult)
	if len(records) == 0 {
		return res, nil
	}
	if len(records) > 1 {
		return nil, s.protocolError("%d records, want 1", len(records))
	}
	r := records[0]
	res.Wins, res.Ties, res.Plays = r[0], r[1], r[2]
	if uint64(res.Wins)+uint64(res.Ties) > uint64(res.Plays) {
		return nil, s.protocolError("wins %d and ties %d exceed plays %d", res.Wins, res.Ties, res.Plays)
	}
	res.Equity = Equity(res.Wins, res.Ties, res.Plays)
	res.RankWins = histogramAt(r, 3)
	return res, nil
}

func (s Spec) decodeRange(records []Record, req Request) ([]card.Combo, error) {
	combos := make([]card.Combo, 0, len(records))
	for i, r := range records {
		for _, w := range r[:2] {
			if w >= card.Count {
				return nil, s.recordError(i, simerrors.InvalidEncoding(w))
			}
		}
		if r[0] == r[1] {
			return nil, s.protocolError("record %d repeats card %d", i, r[0])
		}
		c := card.NewCombo(card.Card(r[0]), card.Card(r[1]))
		if !card.Disjoint(c.Cards(), req.Dead) {
			continue
		}
		combos = append(combos, c)
	}
	return combos, nil
}

func (s Spec) decodeRanking(records []Record, req Request) ([]HandRanking, error) {
	if err := s.checkCount(records, len(LiveHands(req.Hands))); err != nil {
		return nil, err
	}
	out := make([]HandRanking, len(records))
	for i, r := range records {
		hand, err := r.Hand()
		if err != nil {
			return nil, s.recordError(i, err)
		}
		rank, err := categoryAt(r, 2)
		if err != nil {
			return nil, err
		}
		e := HandRanking{
			Hand:      hand,
			RankIndex: rank,
			Rank:      CategoryLabels[rank],
			Score:     r[3],
		}
		for k := range e.Kickers {
			if r[4+k] >= uint32(len(card.Ranks)) {
				return nil, s.protocolError("kicker rank %d out of range", r[4+k])
			}
			e.Kickers[k] = r[4+k]
		}
		out[i] = e
	}
	return out, nil
}
