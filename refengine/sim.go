package refengine

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/wippyai/simbridge/card"
)

const histogramSize = 9

// tally accumulates one row of vs-list output.
type tally struct {
	wins, ties, plays uint32
	hist              [histogramSize]uint32
}

// progressFunc receives completed and total work units.
type progressFunc func(done, total uint64)

// showdown is one sampled runout against one opponent.
type showdown struct {
	hero, opp  [2]card.Card
	board      [5]card.Card
	outcome    uint32
	rankIndex  uint32
	heroCat    int
	oppCat     int
	heroWinner bool
	tie        bool
}

// liveDeck returns the cards not present in dead.
func liveDeck(dead ...[]card.Card) []card.Card {
	var used uint64
	for _, g := range dead {
		for _, c := range g {
			used |= 1 << c
		}
	}
	deck := make([]card.Card, 0, card.Count)
	for _, c := range card.Deck() {
		if used&(1<<c) == 0 {
			deck = append(deck, c)
		}
	}
	return deck
}

// runout completes board from deck using a partial Fisher-Yates shuffle.
// deck stays a permutation of itself, so it can be reused across trials.
func runout(r *rand.Rand, board []card.Card, deck []card.Card, out *[5]card.Card) {
	n := copy(out[:], board)
	for i := 0; n < 5; i, n = i+1, n+1 {
		j := i + r.IntN(len(deck)-i)
		deck[i], deck[j] = deck[j], deck[i]
		out[n] = deck[i]
	}
}

func duel(hero, opp []card.Card, board *[5]card.Card) showdown {
	var hh, oh hand7
	hh[0], hh[1] = hero[0], hero[1]
	oh[0], oh[1] = opp[0], opp[1]
	copy(hh[2:], board[:])
	copy(oh[2:], board[:])

	hs, os := strength(&hh), strength(&oh)
	sd := showdown{
		board:   *board,
		heroCat: categoryOf(hs),
		oppCat:  categoryOf(os),
	}
	sd.hero[0], sd.hero[1] = hero[0], hero[1]
	sd.opp[0], sd.opp[1] = opp[0], opp[1]
	switch {
	case hs > os:
		sd.heroWinner = true
		sd.outcome = 0
		sd.rankIndex = uint32(sd.heroCat)
	case hs < os:
		sd.outcome = 1
		sd.rankIndex = uint32(sd.oppCat)
	default:
		sd.tie = true
		sd.outcome = 2
		sd.rankIndex = uint32(sd.heroCat)
	}
	return sd
}

// vsList plays hero heads-up against each opponent for trials runouts.
// visit, when set, sees every showdown with the opponent's index.
func vsList(r *rand.Rand, hero, board []card.Card, opps [][]card.Card, trials uint32,
	progress progressFunc, visit func(int, showdown)) (tally, []tally) {

	var heroRow tally
	rows := make([]tally, len(opps))
	decks := make([][]card.Card, len(opps))
	for i, opp := range opps {
		decks[i] = liveDeck(hero, board, opp)
	}

	total := uint64(trials) * uint64(len(opps))
	var done uint64
	var full [5]card.Card
	for t := uint32(0); t < trials; t++ {
		for i, opp := range opps {
			runout(r, board, decks[i], &full)
			sd := duel(hero, opp, &full)

			row := &rows[i]
			row.plays++
			heroRow.plays++
			switch {
			case sd.heroWinner:
				row.wins++
				heroRow.wins++
			case sd.tie:
				row.ties++
				heroRow.ties++
			}
			row.hist[sd.oppCat]++
			heroRow.hist[sd.heroCat]++

			if visit != nil {
				visit(i, sd)
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}
	return heroRow, rows
}

// distribution samples the category histogram of each hand on board.
func distribution(r *rand.Rand, hands [][]card.Card, board []card.Card, trials uint32,
	progress progressFunc) [][histogramSize]uint32 {

	out := make([][histogramSize]uint32, len(hands))
	total := uint64(trials) * uint64(len(hands))
	var done uint64
	var full [5]card.Card
	for i, h := range hands {
		deck := liveDeck(h, board)
		var hh hand7
		hh[0], hh[1] = h[0], h[1]
		for t := uint32(0); t < trials; t++ {
			runout(r, board, deck, &full)
			copy(hh[2:], full[:])
			out[i][categoryOf(strength(&hh))]++
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}
	return out
}

// rankSplit buckets the hero's wins and ties by the hero's category and
// losses by the winning opponent's.
type rankSplit struct {
	win, tie, lose [histogramSize]uint32
}

func (rs *rankSplit) add(sd showdown) {
	switch {
	case sd.heroWinner:
		rs.win[sd.heroCat]++
	case sd.tie:
		rs.tie[sd.heroCat]++
	default:
		rs.lose[sd.oppCat]++
	}
}

func mask(groups ...[]card.Card) uint64 {
	var m uint64
	for _, g := range groups {
		for _, c := range g {
			m |= 1 << c
		}
	}
	return m
}

// runoutAvoiding is runout over a deck that may still hold dead cards;
// those are passed over.
func runoutAvoiding(r *rand.Rand, board, deck []card.Card, dead uint64, out *[5]card.Card) {
	n := copy(out[:], board)
	for i := 0; n < 5; i++ {
		j := i + r.IntN(len(deck)-i)
		deck[i], deck[j] = deck[j], deck[i]
		if dead&(1<<deck[i]) != 0 {
			continue
		}
		out[n] = deck[i]
		n++
	}
}

// multiway deals trials runouts to all hands at once and returns each
// hand's pot share summed over trials. Tied winners split the pot evenly.
func multiway(r *rand.Rand, hands [][]card.Card, board []card.Card, trials uint32,
	progress progressFunc) []float64 {

	deck := liveDeck(append(slices.Concat(hands...), board...))
	shares := make([]float64, len(hands))
	scores := make([]int16, len(hands))
	var full [5]card.Card
	var h hand7
	for t := uint32(0); t < trials; t++ {
		runout(r, board, deck, &full)
		copy(h[2:], full[:])
		for i, hole := range hands {
			h[0], h[1] = hole[0], hole[1]
			scores[i] = strength(&h)
		}
		best := slices.Max(scores)
		winners := 0
		for _, sc := range scores {
			if sc == best {
				winners++
			}
		}
		for i, sc := range scores {
			if sc == best {
				shares[i] += 1 / float64(winners)
			}
		}
		if progress != nil {
			progress(uint64(t)+1, uint64(trials))
		}
	}
	return shares
}

// withoutCards drops the combos that use any of cards.
func withoutCards(combos []card.Combo, cards []card.Card) []card.Combo {
	dead := mask(cards)
	return slices.DeleteFunc(combos, func(c card.Combo) bool {
		return dead&mask(c[:]) != 0
	})
}

// rangeEquity estimates every combo's equity against a random compatible
// combo of the other range, trials runouts per combo.
func rangeEquity(r *rand.Rand, hero, villain []card.Combo, board []card.Card, trials uint32,
	progress progressFunc) (heroEq, villainEq []float64) {

	deck := liveDeck(board)
	total := uint64(len(hero)+len(villain)) * uint64(trials)
	var done uint64
	side := func(mine, theirs []card.Combo) []float64 {
		eq := make([]float64, len(mine))
		var full [5]card.Card
		var a, b hand7
		for i, combo := range mine {
			compatible := withoutCards(slices.Clone(theirs), combo[:])
			var t tally
			for range trials {
				done++
				if progress != nil {
					progress(done, total)
				}
				if len(compatible) == 0 {
					continue
				}
				opp := compatible[r.IntN(len(compatible))]
				runoutAvoiding(r, board, deck, mask(combo[:], opp[:]), &full)
				a[0], a[1], b[0], b[1] = combo[0], combo[1], opp[0], opp[1]
				copy(a[2:], full[:])
				copy(b[2:], full[:])
				t.plays++
				switch sa, sb := strength(&a), strength(&b); {
				case sa > sb:
					t.wins++
				case sa == sb:
					t.ties++
				}
			}
			if t.plays > 0 {
				eq[i] = (float64(t.wins) + float64(t.ties)/2) / float64(t.plays)
			}
		}
		return eq
	}
	return side(hero, villain), side(villain, hero)
}

// byEquity returns the indices of eq ordered by equity, highest first.
func byEquity(eq []float64) []int {
	idx := make([]int, len(eq))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(eq[b], eq[a]) })
	return idx
}

// maxDealAttempts bounds the draws spent finding a combo that avoids the
// cards already dealt in an open-ranges trial.
const maxDealAttempts = 64

// openRanges deals a hero combo and one combo per opponent range each trial,
// then a full board. A trial whose ranges cannot be dealt without a shared
// card is skipped. hist counts hero wins by the hero's category.
func openRanges(r *rand.Rand, hero []card.Combo, opps [][]card.Combo, trials uint32) tally {
	var t tally
	deck := card.Deck()
	var full [5]card.Card
	var h hand7
	holes := make([]card.Combo, len(opps))
deal:
	for range trials {
		heroCombo := hero[r.IntN(len(hero))]
		used := mask(heroCombo[:])
		for i, rng := range opps {
			found := false
			for range maxDealAttempts {
				c := rng[r.IntN(len(rng))]
				if used&mask(c[:]) == 0 {
					holes[i], found = c, true
					break
				}
			}
			if !found {
				continue deal
			}
			used |= mask(holes[i][:])
		}

		runoutAvoiding(r, nil, deck, used, &full)
		copy(h[2:], full[:])
		h[0], h[1] = heroCombo[0], heroCombo[1]
		hs := strength(&h)
		var best int16
		for _, c := range holes {
			h[0], h[1] = c[0], c[1]
			best = max(best, strength(&h))
		}

		t.plays++
		switch {
		case hs > best:
			t.wins++
			t.hist[categoryOf(hs)]++
		case hs == best:
			t.ties++
		}
	}
	return t
}

// percent reports whole-percent steps to report, suppressing repeats.
func percent(report func(int)) progressFunc {
	last := -1
	return func(done, total uint64) {
		if total == 0 {
			return
		}
		pct := int(done * 100 / total)
		if pct != last {
			last = pct
			report(pct)
		}
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
