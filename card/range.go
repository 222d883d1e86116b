package card

import (
	"strings"

	simerrors "github.com/wippyai/simbridge/errors"
)

// MaxCombos is the number of distinct two-card starting hands.
const MaxCombos = 1326

// Combo is a starting hand, higher card first.
type Combo [2]Card

// NewCombo orders a and b so the higher packed card comes first.
func NewCombo(a, b Card) Combo {
	if a < b {
		a, b = b, a
	}
	return Combo{a, b}
}

// Cards returns the combo as a slice.
func (c Combo) Cards() []Card { return []Card{c[0], c[1]} }

func (c Combo) String() string { return c[0].String() + c[1].String() }

// handClass is a rank pattern such as "AKs", "QQ" or "T9".
type handClass struct {
	hi, lo int
	suited byte // 's', 'o' or 0 for both
}

func (h handClass) pair() bool { return h.hi == h.lo }

// ParseRange expands a range expression into combos in expression order,
// without duplicates. Tokens are separated by commas:
//
//	AA       one pair class
//	AKs AKo  suited or offsuit class; AK is both
//	QQ+      pairs from QQ up
//	T9s+     connectors from T9s up
//	K9s+     kickers from K9s up to KQs
//	A5s+     ace-high kickers from A5s down to A2s
//	22-55    pairs between the ends
//	KQs-JTs  same-gap classes between the ends
//	AhKd     one explicit combo
//
// A blank expression yields no combos.
func ParseRange(expr string) ([]Combo, error) {
	var out []Combo
	var seen [Count][Count]bool
	add := func(c Combo) {
		if !seen[c[0]][c[1]] {
			seen[c[0]][c[1]] = true
			out = append(out, c)
		}
	}

	for _, raw := range strings.Split(expr, ",") {
		tok := strings.Join(strings.Fields(raw), "")
		if tok == "" {
			continue
		}
		classes, combo, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		if combo != nil {
			add(*combo)
			continue
		}
		for _, h := range classes {
			for _, c := range h.combos() {
				add(c)
			}
		}
	}
	return out, nil
}

func invalidRange(tok string) error {
	return simerrors.New(simerrors.PhaseEncode, simerrors.KindInvalidInput).
		Path("range").
		Value(tok).
		Detail("invalid range token %q", tok).
		Build()
}

func parseToken(tok string) ([]handClass, *Combo, error) {
	if len(tok) == 4 && strings.IndexByte(Suits, tok[1]) >= 0 && strings.IndexByte(Suits, tok[3]) >= 0 {
		a, err := Parse(tok[:2])
		if err != nil {
			return nil, nil, err
		}
		b, err := Parse(tok[2:])
		if err != nil {
			return nil, nil, err
		}
		if a == b {
			return nil, nil, invalidRange(tok)
		}
		c := NewCombo(a, b)
		return nil, &c, nil
	}

	if from, to, ok := strings.Cut(tok, "-"); ok {
		start, ok1 := parseClass(from)
		end, ok2 := parseClass(to)
		if !ok1 || !ok2 {
			return nil, nil, invalidRange(tok)
		}
		classes := span(start, end)
		if classes == nil {
			return nil, nil, invalidRange(tok)
		}
		return classes, nil, nil
	}

	if base, ok := strings.CutSuffix(tok, "+"); ok {
		h, ok := parseClass(base)
		if !ok {
			return nil, nil, invalidRange(tok)
		}
		return plus(h), nil, nil
	}

	h, ok := parseClass(tok)
	if !ok {
		return nil, nil, invalidRange(tok)
	}
	return []handClass{h}, nil, nil
}

func parseClass(s string) (handClass, bool) {
	if len(s) < 2 || len(s) > 3 {
		return handClass{}, false
	}
	r1 := strings.IndexByte(Ranks, s[0])
	r2 := strings.IndexByte(Ranks, s[1])
	if r1 < 0 || r2 < 0 {
		return handClass{}, false
	}
	h := handClass{hi: max(r1, r2), lo: min(r1, r2)}
	if len(s) == 3 {
		if s[2] != 's' && s[2] != 'o' {
			return handClass{}, false
		}
		if h.pair() {
			return handClass{}, false
		}
		h.suited = s[2]
	}
	return h, true
}

func plus(h handClass) []handClass {
	var out []handClass
	switch {
	case h.pair():
		for r := h.hi; r < len(Ranks); r++ {
			out = append(out, handClass{hi: r, lo: r})
		}
	case h.hi == len(Ranks)-1:
		for lo := h.lo; lo >= 0; lo-- {
			out = append(out, handClass{hi: h.hi, lo: lo, suited: h.suited})
		}
	case h.hi-h.lo == 1:
		for hi := h.hi; hi < len(Ranks); hi++ {
			out = append(out, handClass{hi: hi, lo: hi - 1, suited: h.suited})
		}
	default:
		for lo := h.lo; lo < h.hi; lo++ {
			out = append(out, handClass{hi: h.hi, lo: lo, suited: h.suited})
		}
	}
	return out
}

// span returns the classes between start and end, or nil when the ends
// do not describe a run.
func span(start, end handClass) []handClass {
	if start.pair() != end.pair() {
		return nil
	}
	from, to := min(start.hi, end.hi), max(start.hi, end.hi)
	var out []handClass
	if start.pair() {
		for r := from; r <= to; r++ {
			out = append(out, handClass{hi: r, lo: r})
		}
		return out
	}
	gap := start.hi - start.lo
	if gap != end.hi-end.lo || start.suited != end.suited {
		return nil
	}
	for hi := from; hi <= to; hi++ {
		out = append(out, handClass{hi: hi, lo: hi - gap, suited: start.suited})
	}
	return out
}

func (h handClass) combos() []Combo {
	var out []Combo
	for s1 := range len(Suits) {
		for s2 := range len(Suits) {
			if h.pair() && s2 <= s1 {
				continue
			}
			if (h.suited == 's' && s1 != s2) || (h.suited == 'o' && s1 == s2) {
				continue
			}
			out = append(out, NewCombo(Card(h.hi*4+s1), Card(h.lo*4+s2)))
		}
	}
	return out
}
