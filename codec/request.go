package codec

import (
	"math"
	"strings"

	simbridge "github.com/wippyai/simbridge"
	"github.com/wippyai/simbridge/arena"
	"github.com/wippyai/simbridge/card"
	simerrors "github.com/wippyai/simbridge/errors"
)

// Options are named request flags.
type Options struct {
	// Progress selects the progress entry point and streams progress.
	Progress bool `json:"progress,omitempty"`
	// Detail includes per-opponent rows in vs-list results.
	Detail bool `json:"detail,omitempty"`
}

// Request is a simulation request as callers describe it.
//
// Hero, Board and Compare drive vs-list operations. Hands and Board drive
// rank distribution, multi-hand equity and hand ranking. HeroRange with
// VillainRange or OpponentRanges drive the range operations, and Range with
// Dead drives range expansion. Blank hands and ranges are ignored.
type Request struct {
	Hero           []card.Card   `json:"hero,omitempty"`
	Board          []card.Card   `json:"board,omitempty"`
	Compare        [][]card.Card `json:"compare,omitempty"`
	Hands          [][]card.Card `json:"hands,omitempty"`
	HeroRange      string        `json:"heroRange,omitempty"`
	VillainRange   string        `json:"villainRange,omitempty"`
	OpponentRanges []string      `json:"opponentRanges,omitempty"`
	Range          string        `json:"range,omitempty"`
	Dead           []card.Card   `json:"dead,omitempty"`
	Trials         uint32        `json:"trials"`
	Seed           *uint64       `json:"seed,omitempty"`
	Options        Options       `json:"options"`
}

// LiveHands returns hands without the empty entries, in order. Engines skip
// blank entries of a hand list, so results are labelled from this list.
func LiveHands(hands [][]card.Card) [][]card.Card {
	live := make([][]card.Card, 0, len(hands))
	for _, h := range hands {
		if len(h) > 0 {
			live = append(live, h)
		}
	}
	return live
}

// LiveRanges returns trimmed ranges without the blank entries, in order.
func LiveRanges(ranges []string) []string {
	live := make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r = strings.TrimSpace(r); r != "" {
			live = append(live, r)
		}
	}
	return live
}

// Wire is a request in the engine's text form.
type Wire struct {
	Hero       string
	Villain    string
	Board      string
	Compare    string
	Groups     uint32
	BoardCards int
	Trials     uint32
	Seed       uint64
}

// Encode renders req as engine text inputs. seed is used when req has none.
func (s Spec) Encode(req Request, seed uint64) Wire {
	w := Wire{
		Board:      card.Join(req.Board),
		BoardCards: len(req.Board),
		Trials:     req.Trials,
		Seed:       seed,
	}
	if req.Seed != nil {
		w.Seed = *req.Seed
	}
	switch s.Shape {
	case ShapeHandsBoard, ShapeRanking:
		hands := LiveHands(req.Hands)
		w.Compare = card.JoinHands(hands)
		w.Groups = uint32(len(hands))
	case ShapeRangeVsRange:
		w.Hero = strings.TrimSpace(req.HeroRange)
		w.Villain = strings.TrimSpace(req.VillainRange)
	case ShapeOpenRanges:
		opps := LiveRanges(req.OpponentRanges)
		w.Hero = strings.TrimSpace(req.HeroRange)
		w.Compare = strings.Join(opps, card.HandSeparator)
		w.Groups = uint32(len(opps))
	case ShapeRange:
		w.Hero = strings.TrimSpace(req.Range)
	default:
		opps := LiveHands(req.Compare)
		w.Hero = card.Join(req.Hero)
		w.Compare = card.JoinHands(opps)
		w.Groups = uint32(len(opps))
	}
	return w
}

// Degenerate reports whether w cannot produce a meaningful simulation and
// should be answered with an empty result without calling the engine.
func (s Spec) Degenerate(w Wire) bool {
	if s.Shape.Seeded() && w.Trials == 0 {
		return true
	}
	switch s.Shape {
	case ShapeVsList:
		return len(w.Hero) < 4 || w.Groups == 0
	case ShapeRangeVsRange:
		return w.Hero == "" || w.Villain == ""
	case ShapeOpenRanges:
		return w.Hero == "" || w.Groups == 0
	case ShapeRange:
		return w.Hero == ""
	}
	if w.Groups < s.MinGroups || (s.MaxGroups > 0 && w.Groups > s.MaxGroups) {
		return true
	}
	return w.BoardCards < s.MinBoard || w.BoardCards > s.MaxBoard
}

// Capacity returns the output size in words reserved for w.
func (s Spec) Capacity(w Wire) uint64 {
	width := uint64(s.Width)
	switch {
	case s.Operation == OpVsListTrace:
		return uint64(w.Groups) * uint64(w.Trials) * width
	case s.Shape == ShapeVsList && s.Operation != OpVsListMonteCarlo:
		return (uint64(w.Groups) + 1) * width
	case s.Shape == ShapeRangeVsRange:
		return 2 * card.MaxCombos * width
	case s.Shape == ShapeRange:
		return card.MaxCombos * width
	case s.Shape == ShapeOpenRanges:
		return width
	default:
		return uint64(w.Groups) * width
	}
}

// texts returns the text arguments of w in entry point order.
func (s Spec) texts(w Wire) []string {
	switch s.Shape {
	case ShapeVsList:
		return []string{w.Hero, w.Board, w.Compare}
	case ShapeRangeVsRange:
		return []string{w.Hero, w.Villain, w.Board}
	case ShapeOpenRanges:
		return []string{w.Hero, w.Compare}
	case ShapeRange:
		return []string{w.Hero}
	default:
		return []string{w.Compare, w.Board}
	}
}

// Layout locates an encoded request in engine memory.
type Layout struct {
	// Texts holds the text arguments in entry point order.
	Texts    []simbridge.Span
	Out      uint32
	OutWords uint32
}

// Write copies w into memory through a and reserves the output region.
func (s Spec) Write(a *arena.Arena, w Wire) (Layout, error) {
	capacity := s.Capacity(w)
	if capacity == 0 || capacity > math.MaxUint32/arena.WordSize {
		return Layout{}, simerrors.New(simerrors.PhaseEncode, simerrors.KindInvalidInput).
			Export(s.Export).
			Detail("output of %d words cannot be reserved", capacity).
			Build()
	}

	texts := s.texts(w)
	l := Layout{Texts: make([]simbridge.Span, len(texts))}
	for i, text := range texts {
		span, err := a.WriteText(text)
		if err != nil {
			return Layout{}, err
		}
		l.Texts[i] = span
	}
	out, err := a.Reserve(uint32(capacity))
	if err != nil {
		return Layout{}, err
	}
	l.Out = out
	l.OutWords = uint32(capacity)
	return l, nil
}

// Params returns the entry point arguments for l.
func (s Spec) Params(l Layout, w Wire) []uint64 {
	params := make([]uint64, 0, s.Shape.Arity())
	for _, sp := range l.Texts {
		params = append(params, uint64(sp.Offset), uint64(sp.Length))
	}
	if s.Shape.Seeded() {
		params = append(params, uint64(w.Trials), w.Seed)
	}
	return append(params, uint64(l.Out), uint64(l.OutWords))
}

// Check interprets an entry point return code and yields the record count.
func (s Spec) Check(export string, rc int32, l Layout) (int, error) {
	if rc < 0 {
		return 0, simerrors.ModuleFailure(export, rc)
	}
	if rc == 0 {
		if s.EmptyIsError {
			return 0, simerrors.EmptyResult(export)
		}
		return 0, nil
	}
	if uint64(rc)*uint64(s.Width) > uint64(l.OutWords) {
		return 0, simerrors.New(simerrors.PhaseDecode, simerrors.KindProtocol).
			Export(export).
			Value(rc).
			Detail("%d records of %d words exceed reserved %d words", rc, s.Width, l.OutWords).
			Build()
	}
	return int(rc), nil
}
