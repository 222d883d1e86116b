package refengine

import (
	"cmp"
	"slices"

	"github.com/paulhankin/poker"

	"github.com/wippyai/simbridge/card"
)

var pokerCards [card.Count]poker.Card

var pokerSuits = [4]poker.Suit{poker.Spade, poker.Heart, poker.Diamond, poker.Club}

// Category indices, matching the histogram slots.
const (
	highCard = iota
	onePair
	twoPair
	threeOfAKind
	straight
	flush
	fullHouse
	fourOfAKind
	straightFlush
)

// Scores sort by category first, so every category owns a contiguous band.
// categoryFloor holds the score of the weakest five-card hand per category.
var categoryFloor [straightFlush + 1]int16

var weakestHands = [straightFlush + 1]string{
	onePair:       "2s 2h 5d 4c 3s",
	twoPair:       "3s 3h 2d 2c 4s",
	threeOfAKind:  "2s 2h 2d 4c 3s",
	straight:      "As 2h 3d 4c 5s",
	flush:         "7s 5s 4s 3s 2s",
	fullHouse:     "2s 2h 2d 3c 3s",
	fourOfAKind:   "2s 2h 2d 2c 3s",
	straightFlush: "As 2s 3s 4s 5s",
}

func init() {
	for _, c := range card.Deck() {
		// poker ranks run 1 (ace) to 13 (king).
		rank := poker.Rank(c.Rank() + 2)
		if c.Rank() == 12 {
			rank = 1
		}
		pc, err := poker.MakeCard(pokerSuits[c.Suit()], rank)
		if err != nil {
			panic(err)
		}
		pokerCards[c] = pc
	}
	for cat, h := range weakestHands {
		if h != "" {
			categoryFloor[cat] = score(card.MustParseList(h))
		}
	}
}

// hand7 is two hole cards followed by five board cards.
type hand7 [7]card.Card

// strength scores a hand; higher is stronger.
func strength(h *hand7) int16 {
	var pc [7]poker.Card
	for i, c := range h {
		pc[i] = pokerCards[c]
	}
	return poker.Eval7(&pc)
}

// score returns the strength of the best five cards among five to seven.
func score(cards []card.Card) int16 {
	if len(cards) == 7 {
		h := hand7(cards)
		return strength(&h)
	}
	pc := make([]poker.Card, len(cards))
	for i, c := range cards {
		pc[i] = pokerCards[c]
	}
	if len(pc) == 5 {
		return poker.Eval(pc)
	}
	var best int16
	five := make([]poker.Card, 0, 5)
	for skip := range pc {
		five = five[:0]
		for i, c := range pc {
			if i != skip {
				five = append(five, c)
			}
		}
		best = max(best, poker.Eval(five))
	}
	return best
}

// categoryOf maps a score to its hand category.
func categoryOf(s int16) int {
	for cat := straightFlush; cat > highCard; cat-- {
		if s >= categoryFloor[cat] {
			return cat
		}
	}
	return highCard
}

// kickers lists the distinct rank indices of the best hand for s, ordered
// by multiplicity then rank. Straights carry only their top card.
func kickers(s int16) [5]uint32 {
	var out [5]uint32
	five, ok := poker.EvalToHand5(s)
	if !ok {
		return out
	}
	var counts [13]int
	for _, c := range five {
		counts[c.RawRank()]++
	}
	if cat := categoryOf(s); cat == straight || cat == straightFlush {
		top := 12
		for counts[top] == 0 {
			top--
		}
		if counts[12] > 0 && counts[3] > 0 {
			top = 3
		}
		out[0] = uint32(top)
		return out
	}
	var ranks []int
	for r := 12; r >= 0; r-- {
		if counts[r] > 0 {
			ranks = append(ranks, r)
		}
	}
	slices.SortStableFunc(ranks, func(a, b int) int { return cmp.Compare(counts[b], counts[a]) })
	for i, r := range ranks {
		out[i] = uint32(r)
	}
	return out
}
