package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	revokedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	snapshot kernel.Snapshot
	selected int
	focusIdx int
	state    modelState
}

type funcInfo struct {
	inst   *runtime.Instance
	export runtime.Export
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
	stateTables
)

func newInteractiveModel(rt *runtime.Runtime, guests []*runtime.Instance) *interactiveModel {
	m := &interactiveModel{rt: rt, state: stateSelectFunc}
	for _, g := range guests {
		for _, e := range g.Exports() {
			if strings.HasPrefix(e.Name, "__wasmosis_") {
				continue
			}
			m.funcs = append(m.funcs, funcInfo{inst: g, export: e})
		}
	}
	return m
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "t":
			if m.state == stateSelectFunc || m.state == stateShowResult {
				m.snapshot = m.rt.Snapshot()
				m.state = stateTables
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult, stateTables:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult, stateTables:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

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

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.export.Params))
	for i, p := range f.export.Params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	params := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		v, err := encodeArg(input.Value(), f.export.Params[i])
		if err != nil {
			return callResultMsg{err: err}
		}
		params[i] = v
	}

	res, err := f.inst.Call(context.Background(), f.export.Name, params...)
	if err != nil {
		return callResultMsg{err: err}
	}

	parts := make([]string, len(res))
	for i, r := range res {
		parts[i] = decodeResult(r, f.export.Results[i])
	}
	out := strings.Join(parts, ", ")
	if last := f.inst.Module().LastError(); last != nil {
		out += fmt.Sprintf("\nlast kernel error: %v (code %d)", last, errors.CodeOf(last))
	}
	return callResultMsg{result: out}
}

func encodeArg(value string, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		if v, err := strconv.ParseInt(value, 0, 32); err == nil {
			return api.EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(value, 0, 32)
		return api.EncodeU32(uint32(v)), err
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(value, 0, 64)
		return api.EncodeI64(v), err
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(value, 32)
		return api.EncodeF32(float32(v)), err
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(value, 64)
		return api.EncodeF64(v), err
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func decodeResult(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("%#x", v)
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmosis"))
	b.WriteString(fmt.Sprintf(" kernel %s\n\n", m.rt.Kernel().ID()))

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("No guest exports.\n\n")
		} else {
			b.WriteString("Select a function to call:\n\n")
		}
		for i, f := range m.funcs {
			line := f.inst.Name() + "." + formatExport(f.export)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • t tables • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s.%s\n\n", f.inst.Name(), funcStyle.Render(f.export.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.export.Params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s.%s:\n\n", f.inst.Name(), funcStyle.Render(f.export.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • t tables • q quit"))

	case stateTables:
		b.WriteString(renderTables(m.snapshot))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}

	return b.String()
}

func renderTables(s kernel.Snapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d objects, %d references\n\n", s.Objects, s.Refs))
	for _, mod := range s.Modules {
		b.WriteString(funcStyle.Render(fmt.Sprintf("%s #%d", mod.Name, mod.ID)))
		b.WriteString(fmt.Sprintf("  %d slots\n", len(mod.Slots)))
		for _, sl := range mod.Slots {
			line := fmt.Sprintf("  %4d  %-8s obj=%-4d owner=%-3d refs=%d", sl.Cap, sl.Kind, sl.Object, sl.Owner, sl.Refs)
			if sl.Borrowed {
				line += " borrowed"
			}
			if sl.Revoked {
				line = revokedStyle.Render(line + " revoked")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatExport(e runtime.Export) string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	result := ""
	if len(e.Results) > 0 {
		results := make([]string, len(e.Results))
		for i, r := range e.Results {
			results[i] = typeStyle.Render(api.ValueTypeName(r))
		}
		result = " -> " + strings.Join(results, ", ")
	}
	return funcStyle.Render(e.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(rt *runtime.Runtime, guests []*runtime.Instance) error {
	p := tea.NewProgram(newInteractiveModel(rt, guests), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
