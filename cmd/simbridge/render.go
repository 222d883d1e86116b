package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/simbridge/card"
	"github.com/wippyai/simbridge/codec"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// render formats a result payload for a terminal.
func render(op codec.Operation, data json.RawMessage) (string, error) {
	switch op {
	case codec.OpVsListTrace:
		var entries []codec.TraceEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return "", err
		}
		return renderTrace(entries), nil
	case codec.OpRankDistribution:
		var entries []codec.RankDistributionEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return "", err
		}
		return renderDistribution(entries), nil
	case codec.OpVsListMonteCarlo:
		var res codec.MonteCarloResult
		if err := json.Unmarshal(data, &res); err != nil {
			return "", err
		}
		return renderMonteCarlo(&res), nil
	case codec.OpMultiHandEquity:
		var res codec.MultiHandResult
		if err := json.Unmarshal(data, &res); err != nil {
			return "", err
		}
		t := newTable("hand", "equity")
		for _, e := range res.Data {
			t.Row(e.Hand, pct(e.Equity))
		}
		return t.String(), nil
	case codec.OpRangeVsRangeEquity:
		var res codec.RangeVsRangeResult
		if err := json.Unmarshal(data, &res); err != nil {
			return "", err
		}
		return renderRangeVsRange(&res), nil
	case codec.OpOpenRangesMonteCarlo:
		var res codec.OpenRangesResult
		if err := json.Unmarshal(data, &res); err != nil {
			return "", err
		}
		return renderOpenRanges(&res), nil
	case codec.OpParseRange:
		var combos []card.Combo
		if err := json.Unmarshal(data, &combos); err != nil {
			return "", err
		}
		names := make([]string, len(combos))
		for i, c := range combos {
			names[i] = c.String()
		}
		return labelStyle.Render(fmt.Sprintf("%d combos ", len(combos))) + strings.Join(names, " "), nil
	case codec.OpEvaluateRanking:
		var ranking []codec.HandRanking
		if err := json.Unmarshal(data, &ranking); err != nil {
			return "", err
		}
		t := newTable("#", "hand", "rank", "score")
		for i, r := range ranking {
			t.Row(strconv.Itoa(i+1), r.Hand, r.Rank, fmt.Sprint(r.Score))
		}
		return t.String(), nil
	default:
		var res codec.SimulationResult
		if err := json.Unmarshal(data, &res); err != nil {
			return "", err
		}
		return renderEquity(&res), nil
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(labelStyle).
		Headers(headers...)
}

func pct(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}

func renderEquity(res *codec.SimulationResult) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("hero "))
	b.WriteString(res.Hand)
	b.WriteString("  ")
	b.WriteString(resultStyle.Render("equity " + pct(res.HeroEquity)))
	if len(res.PerOpponent) == 0 {
		return b.String()
	}

	t := newTable("opponent", "equity", "wins", "ties", "plays")
	for _, r := range res.PerOpponent {
		t.Row(r.Hand, pct(r.Equity), fmt.Sprint(r.Wins), fmt.Sprint(r.Ties), fmt.Sprint(r.Plays))
	}
	b.WriteString("\n")
	b.WriteString(t.String())

	var rows []codec.HandResult
	if res.Hero != nil && res.Hero.Histogram != nil {
		rows = append(rows, *res.Hero)
	}
	for _, r := range res.PerOpponent {
		if r.Histogram != nil {
			rows = append(rows, r)
		}
	}
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(histogramTable(rows))
	}
	return b.String()
}

func histogramTable(rows []codec.HandResult) string {
	t := newTable(append([]string{"hand"}, codec.CategoryLabels[:]...)...)
	for _, r := range rows {
		cells := []string{r.Hand}
		for _, n := range r.Histogram {
			cells = append(cells, fmt.Sprint(n))
		}
		t.Row(cells...)
	}
	return t.String()
}

func renderTrace(entries []codec.TraceEntry) string {
	t := newTable("hero", "board", "villain", "outcome", "rank")
	for _, e := range entries {
		t.Row(e.Hero, strings.Join(e.Board, " "), e.Villain, e.Outcome.String(), e.Rank)
	}
	return t.String()
}

func renderDistribution(entries []codec.RankDistributionEntry) string {
	t := newTable("category")
	headers := []string{"category"}
	for _, e := range entries {
		headers = append(headers, e.Hand)
	}
	t.Headers(headers...)
	for i, label := range codec.CategoryLabels {
		cells := []string{label}
		for _, e := range entries {
			total := e.Results.Total()
			share := 0.0
			if total > 0 {
				share = float64(e.Results[i]) / float64(total)
			}
			cells = append(cells, pct(share))
		}
		t.Row(cells...)
	}
	return t.String()
}

func renderMonteCarlo(res *codec.MonteCarloResult) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("hero "))
	b.WriteString(res.Hand)
	b.WriteString("  ")
	b.WriteString(resultStyle.Render("equity " + pct(res.HeroEquity)))
	if len(res.Data) == 0 {
		return b.String()
	}
	t := newTable("opponent", "equity", "wins", "ties", "plays")
	for _, r := range res.Data {
		t.Row(r.Hand, pct(r.Equity), fmt.Sprint(r.Wins), fmt.Sprint(r.Ties), fmt.Sprint(r.Plays))
	}
	b.WriteString("\n")
	b.WriteString(t.String())
	return b.String()
}

func renderRangeVsRange(res *codec.RangeVsRangeResult) string {
	t := newTable("role", "hand", "equity")
	for _, e := range res.Hero {
		t.Row("hero", e.Hand, pct(e.Equity))
	}
	for _, e := range res.Villain {
		t.Row("villain", e.Hand, pct(e.Equity))
	}
	return t.String()
}

func renderOpenRanges(res *codec.OpenRangesResult) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("hero "))
	b.WriteString(res.HeroRange)
	b.WriteString(labelStyle.Render("  vs "))
	b.WriteString(strings.Join(res.OpponentRanges, " | "))
	b.WriteString("  ")
	b.WriteString(resultStyle.Render("equity " + pct(res.Equity)))
	fmt.Fprintf(&b, "  %d wins, %d ties, %d plays\n", res.Wins, res.Ties, res.Plays)

	t := newTable("category", "wins")
	for i, label := range codec.CategoryLabels {
		t.Row(label, fmt.Sprint(res.RankWins[i]))
	}
	b.WriteString(t.String())
	return b.String()
}
