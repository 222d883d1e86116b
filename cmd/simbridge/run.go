package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/simbridge/card"
	"github.com/wippyai/simbridge/codec"
)

// requestInput is a simulation request in command line form.
type requestInput struct {
	op        string
	hero      string
	board     string
	compare   string
	hands     string
	heroRange string
	villain   string
	opponents string
	rng       string
	dead      string
	trials    uint32
	seed      uint64
	detail    bool
}

// build parses the inputs of in into a request for its operation.
func (in requestInput) build() (codec.Operation, codec.Request, error) {
	op := codec.Operation(in.op)
	spec, ok := codec.Lookup(op)
	if !ok {
		return "", codec.Request{}, fmt.Errorf("unknown operation %q", in.op)
	}

	req := codec.Request{Trials: in.trials, Options: codec.Options{Detail: in.detail}}
	if in.seed != 0 {
		seed := in.seed
		req.Seed = &seed
	}
	var err error
	if req.Board, err = card.ParseList(in.board); err != nil {
		return "", codec.Request{}, fmt.Errorf("board: %w", err)
	}

	switch spec.Shape {
	case codec.ShapeHandsBoard, codec.ShapeRanking:
		hands := in.hands
		if hands == "" {
			hands = in.compare
		}
		if req.Hands, err = card.ParseHands(hands); err != nil {
			return "", codec.Request{}, fmt.Errorf("hands: %w", err)
		}
	case codec.ShapeRangeVsRange:
		req.HeroRange, req.VillainRange = in.heroRange, in.villain
	case codec.ShapeOpenRanges:
		req.HeroRange = in.heroRange
		req.OpponentRanges = strings.Split(in.opponents, ";")
	case codec.ShapeRange:
		req.Range = in.rng
		if req.Dead, err = card.ParseList(in.dead); err != nil {
			return "", codec.Request{}, fmt.Errorf("dead: %w", err)
		}
	default:
		if req.Hero, err = card.ParseList(in.hero); err != nil {
			return "", codec.Request{}, fmt.Errorf("hero: %w", err)
		}
		if req.Compare, err = card.ParseHands(in.compare); err != nil {
			return "", codec.Request{}, fmt.Errorf("compare: %w", err)
		}
	}
	return op, req, nil
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var in requestInput
	fs.StringVar(&in.op, "op", string(codec.OpVsListEquity), "Operation: "+operationList())
	fs.StringVar(&in.hero, "hero", "", `Hero hand, e.g. "As Ks"`)
	fs.StringVar(&in.board, "board", "", `Board cards, e.g. "2c 7d 9h"`)
	fs.StringVar(&in.compare, "compare", "", `Opponent hands, e.g. "Qc Qd; Jh Js"`)
	fs.StringVar(&in.hands, "hands", "", "Hands for distribution, multi-hand and ranking operations")
	fs.StringVar(&in.heroRange, "hero-range", "", `Hero range, e.g. "QQ+, AKs"`)
	fs.StringVar(&in.villain, "villain-range", "", `Villain range, e.g. "22-99"`)
	fs.StringVar(&in.opponents, "opponents", "", `Opponent ranges, e.g. "KK+; AQs+"`)
	fs.StringVar(&in.rng, "range", "", "Range to expand for parseRangeToHands")
	fs.StringVar(&in.dead, "dead", "", "Cards excluded from the expanded range")
	fs.Uint64Var(&in.seed, "seed", 0, "Seed (0 = random)")
	fs.BoolVar(&in.detail, "detail", true, "Include per-opponent rows")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	interactive := fs.Bool("i", false, "Interactive mode with TUI")
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	if *interactive {
		return runInteractive(cfg)
	}
	in.trials = cfg.Trials

	op, req, err := in.build()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	client, _, stop := startLocalWorker(ctx, cfg)
	defer stop()

	var onProgress func(int)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		onProgress = func(pct int) { fmt.Fprintf(os.Stderr, "\r%3d%%", pct) }
	}
	h, err := client.Call(ctx, op, req, onProgress)
	if err != nil {
		return err
	}
	data, err := h.Wait(ctx)
	if onProgress != nil {
		fmt.Fprint(os.Stderr, "\r    \r")
	}
	if err != nil {
		return err
	}

	if *asJSON {
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	text, err := render(op, data)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func operationList() string {
	var names []string
	for _, op := range codec.Operations() {
		names = append(names, string(op))
	}
	return strings.Join(names, ", ")
}
