package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/simbridge/codec"
	"github.com/wippyai/simbridge/internal/config"
	"github.com/wippyai/simbridge/rpc"
)

type interactiveModel struct {
	err      error
	client   *rpc.Client
	stop     func() error
	cfg      config.Config
	result   string
	specs    []codec.Spec
	inputs   []textinput.Model
	fields   []string
	bar      progress.Model
	pct      int
	updates  chan int
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputArgs
	stateRunning
	stateShowResult
)

func newInteractiveModel(cfg config.Config) *interactiveModel {
	return &interactiveModel{
		cfg:   cfg,
		specs: codec.Specs(),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state: stateSelectOp,
	}
}

type startedMsg struct {
	err    error
	client *rpc.Client
	stop   func() error
}

type progressMsg int

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.startWorker
}

func (m *interactiveModel) startWorker() tea.Msg {
	client, runner, stop := startLocalWorker(context.Background(), m.cfg)
	if err := runner.Warm(context.Background()); err != nil {
		stop()
		return startedMsg{err: err}
	}
	return startedMsg{client: client, stop: stop}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "q":
			if m.state != stateInputArgs {
				return m, m.quit()
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.specs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				m.prepareInputs()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				m.state = stateRunning
				m.pct = 0
				m.updates = make(chan int, 128)
				return m, tea.Batch(m.callSimulation(m.updates), waitProgress(m.updates))

			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}

		case "tab", "shift+tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.inputs) - 1
				}
				m.focusIdx = (m.focusIdx + step) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectOp
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}
		}

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.client = msg.client
		m.stop = msg.stop

	case progressMsg:
		if m.state != stateRunning {
			return m, nil
		}
		m.pct = int(msg)
		return m, waitProgress(m.updates)

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) quit() tea.Cmd {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	return tea.Quit
}

func (m *interactiveModel) prepareInputs() {
	spec := m.specs[m.selected]
	m.fields = []string{"hero", "board", "compare", "trials", "seed"}
	defaults := map[string]string{
		"hero":    "As Ks",
		"compare": "Qc Qd",
		"trials":  strconv.FormatUint(uint64(m.cfg.Trials), 10),
	}
	switch spec.Shape {
	case codec.ShapeHandsBoard:
		m.fields = []string{"hands", "board", "trials", "seed"}
		defaults["hands"] = "As Ks; 7h 7s"
		defaults["board"] = "2c 7d 9h"
		if spec.Operation == codec.OpMultiHandEquity {
			defaults["hands"] = "As Ks; 7h 7s; Qc Jc"
			defaults["board"] = ""
		}
	case codec.ShapeRanking:
		m.fields = []string{"hands", "board"}
		defaults["hands"] = "As Ks; 7h 7s; Qc Jc"
		defaults["board"] = "2c 7d 9h"
	case codec.ShapeRangeVsRange:
		m.fields = []string{"hero", "villain", "board", "trials", "seed"}
		defaults["hero"] = "QQ+, AKs"
		defaults["villain"] = "22-99"
	case codec.ShapeOpenRanges:
		m.fields = []string{"hero", "opponents", "trials", "seed"}
		defaults["hero"] = "QQ+, AKs"
		defaults["opponents"] = "22+; A2s+"
	case codec.ShapeRange:
		m.fields = []string{"range", "dead"}
		defaults["range"] = "QQ+, AKs"
	}
	if spec.Operation == codec.OpVsListTrace {
		defaults["trials"] = "5"
	}

	m.inputs = make([]textinput.Model, len(m.fields))
	for i, name := range m.fields {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("%-10s ", name+":")
		ti.Placeholder = placeholder(name)
		ti.SetValue(defaults[name])
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func placeholder(field string) string {
	switch field {
	case "hero":
		return "As Ks"
	case "board":
		return "empty or 3-5 cards"
	case "compare", "hands":
		return "Qc Qd; Jh Js"
	case "villain", "range":
		return "QQ+, AKs, 22-99"
	case "opponents":
		return "KK+; AQs+"
	case "dead":
		return "Ah Kd"
	case "seed":
		return "0 = random"
	default:
		return ""
	}
}

func (m *interactiveModel) value(field string) string {
	for i, name := range m.fields {
		if name == field {
			return strings.TrimSpace(m.inputs[i].Value())
		}
	}
	return ""
}

func waitProgress(ch <-chan int) tea.Cmd {
	return func() tea.Msg {
		pct, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(pct)
	}
}

func (m *interactiveModel) callSimulation(updates chan int) tea.Cmd {
	spec := m.specs[m.selected]
	in := requestInput{
		op:        string(spec.Operation),
		hero:      m.value("hero"),
		board:     m.value("board"),
		compare:   m.value("compare"),
		hands:     m.value("hands"),
		villain:   m.value("villain"),
		opponents: m.value("opponents"),
		rng:       m.value("range"),
		dead:      m.value("dead"),
		detail:    true,
	}
	// The hero field holds a range for the range operations.
	if spec.Shape == codec.ShapeRangeVsRange || spec.Shape == codec.ShapeOpenRanges {
		in.heroRange, in.hero = in.hero, ""
	}
	trialsText := m.value("trials")
	if !spec.Shape.Seeded() {
		trialsText = "0"
	}
	trials, trialsErr := strconv.ParseUint(trialsText, 10, 32)
	seedText := m.value("seed")
	client := m.client

	return func() tea.Msg {
		defer close(updates)
		if client == nil {
			return callResultMsg{err: fmt.Errorf("worker not started")}
		}
		if trialsErr != nil {
			return callResultMsg{err: fmt.Errorf("trials: %w", trialsErr)}
		}
		in.trials = uint32(trials)
		if seedText != "" {
			seed, err := strconv.ParseUint(seedText, 10, 64)
			if err != nil {
				return callResultMsg{err: fmt.Errorf("seed: %w", err)}
			}
			in.seed = seed
		}
		op, req, err := in.build()
		if err != nil {
			return callResultMsg{err: err}
		}

		ctx := context.Background()
		h, err := client.Call(ctx, op, req, func(pct int) {
			select {
			case updates <- pct:
			default:
			}
		})
		if err != nil {
			return callResultMsg{err: err}
		}
		data, err := h.Wait(ctx)
		if err != nil {
			return callResultMsg{err: err}
		}
		text, err := render(op, data)
		return callResultMsg{result: text, err: err}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.client == nil {
		return "Loading engine..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Simulation Bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.Module)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, s := range m.specs {
			line := m.formatSpec(s)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + string(s.Operation)))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputArgs:
		s := m.specs[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", opStyle.Render(string(s.Operation))))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateRunning:
		s := m.specs[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", opStyle.Render(string(s.Operation))))
		b.WriteString(m.bar.ViewAs(float64(m.pct) / 100))
		b.WriteString("\n")

	case stateShowResult:
		s := m.specs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", opStyle.Render(string(s.Operation))))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(m.result)
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatSpec(s codec.Spec) string {
	line := opStyle.Render(string(s.Operation)) + " " + labelStyle.Render(s.Export)
	if s.ProgressExport != "" {
		line += helpStyle.Render(" (progress)")
	}
	return line
}

// runInteractive leaves package loggers at their no-op default so log
// lines do not tear the alternate screen.
func runInteractive(cfg config.Config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func interactiveCommand(args []string) error {
	fs := flag.NewFlagSet("interactive", flag.ExitOnError)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		return err
	}
	return runInteractive(cfg)
}
