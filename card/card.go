// Package card converts between two-character card notation and the packed
// integer form the simulation engine works with.
//
// A card packs as rankIndex*4 + suitIndex where ranks run 2..A
// ("23456789TJQKA") and suits run s, h, d, c. The mapping is a bijection over
// the 52 cards, so Parse(c.String()) == c for every valid card.
package card

import (
	"strings"

	simerrors "github.com/wippyai/simbridge/errors"
)

const (
	// Ranks lists rank characters in index order.
	Ranks = "23456789TJQKA"
	// Suits lists suit characters in index order.
	Suits = "shdc"

	// Count is the number of distinct cards.
	Count = 52

	// Sentinel marks the hero aggregate row in place of both card words.
	Sentinel uint32 = 0xFFFFFFFF
)

// Card is a packed card value in [0, 52).
type Card uint8

// New builds a card from rank and suit indices.
func New(rank, suit int) (Card, error) {
	if rank < 0 || rank >= len(Ranks) || suit < 0 || suit >= len(Suits) {
		return 0, simerrors.New(simerrors.PhaseEncode, simerrors.KindInvalidCard).
			Value([2]int{rank, suit}).
			Detail("rank %d suit %d out of range", rank, suit).
			Build()
	}
	return Card(rank*4 + suit), nil
}

// Parse reads two-character notation such as "As" or "Td".
// The rank must be uppercase (or a digit) and the suit lowercase.
func Parse(notation string) (Card, error) {
	if len(notation) != 2 {
		return 0, simerrors.InvalidCard(notation)
	}
	r := strings.IndexByte(Ranks, notation[0])
	s := strings.IndexByte(Suits, notation[1])
	if r < 0 || s < 0 {
		return 0, simerrors.InvalidCard(notation)
	}
	return Card(r*4 + s), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(notation string) Card {
	c, err := Parse(notation)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode returns the packed value for notation.
func Encode(notation string) (uint8, error) {
	c, err := Parse(notation)
	return uint8(c), err
}

// Decode returns the notation for a packed value read from engine memory.
func Decode(v uint32) (string, error) {
	if v >= Count {
		return "", simerrors.InvalidEncoding(v)
	}
	return Card(v).String(), nil
}

// Rank returns the rank index, 0 for a deuce through 12 for an ace.
func (c Card) Rank() int { return int(c) >> 2 }

// Suit returns the suit index in s, h, d, c order.
func (c Card) Suit() int { return int(c) & 3 }

// Valid reports whether c is one of the 52 cards.
func (c Card) Valid() bool { return c < Count }

func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string([]byte{Ranks[c.Rank()], Suits[c.Suit()]})
}

// MarshalText implements encoding.TextMarshaler.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, simerrors.InvalidEncoding(uint32(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Deck returns all 52 cards in packed order.
func Deck() []Card {
	deck := make([]Card, Count)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}
