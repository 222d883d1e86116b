package card

import (
	"strings"

	simerrors "github.com/wippyai/simbridge/errors"
)

// Separators used by the engine's text inputs.
const (
	CardSeparator = " "
	HandSeparator = "; "
)

// ParseList reads a card list written with or without separating spaces,
// e.g. "As Ks" or "AsKs". An empty or blank string yields no cards.
func ParseList(s string) ([]Card, error) {
	compact := strings.Join(strings.Fields(s), "")
	if len(compact)%2 != 0 {
		return nil, simerrors.InvalidCard(strings.TrimSpace(s))
	}
	cards := make([]Card, 0, len(compact)/2)
	for i := 0; i < len(compact); i += 2 {
		c, err := Parse(compact[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// ParseHands reads hands separated by ';', e.g. "Qc Qd; Jh Js".
// Blank entries are skipped.
func ParseHands(s string) ([][]Card, error) {
	var hands [][]Card
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cards, err := ParseList(part)
		if err != nil {
			return nil, err
		}
		hands = append(hands, cards)
	}
	return hands, nil
}

// Join renders cards separated by a single space.
func Join(cards []Card) string {
	var b strings.Builder
	for i, c := range cards {
		if i > 0 {
			b.WriteString(CardSeparator)
		}
		b.WriteString(c.String())
	}
	return b.String()
}

// JoinHands renders hands separated by "; ".
func JoinHands(hands [][]Card) string {
	parts := make([]string, len(hands))
	for i, h := range hands {
		parts[i] = Join(h)
	}
	return strings.Join(parts, HandSeparator)
}

// Label renders a hand compactly, e.g. "AsKs".
func Label(cards []Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.String())
	}
	return b.String()
}

// Disjoint reports whether no card appears twice across groups.
func Disjoint(groups ...[]Card) bool {
	var seen uint64
	for _, g := range groups {
		for _, c := range g {
			if !c.Valid() {
				return false
			}
			bit := uint64(1) << c
			if seen&bit != 0 {
				return false
			}
			seen |= bit
		}
	}
	return true
}

// MustParseList is ParseList for literals known to be valid.
func MustParseList(s string) []Card {
	cards, err := ParseList(s)
	if err != nil {
		panic(err)
	}
	return cards
}
