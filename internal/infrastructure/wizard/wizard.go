package wizard

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/dcov/internal/application"
)

type (
	wizardState int
	fieldKind   int

	initWizardModel struct {
		state     wizardState
		base      application.Config
		fields    []wizardField
		cursor    int
		confirmed bool
		aborted   bool
	}

	wizardField struct {
		label string
		kind  fieldKind
		value string
		on    bool
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

const (
	textField fieldKind = iota
	toggleField
)

// Field order in the edit view.
const (
	fieldOutput = iota
	fieldHTML
	fieldUnit
	fieldFunctional
	fieldFunctionalRoot
	fieldSeleniumJar
)

func Run(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	return runInitWizard(cfg, stdout, stdin)
}

func runInitWizard(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	model := newInitWizardModel(cfg)
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return cfg, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return cfg, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return cfg, false, nil
	}
	return finalModel.toConfig(), true, nil
}

func newInitWizardModel(cfg application.Config) *initWizardModel {
	fields := make([]wizardField, fieldSeleniumJar+1)
	fields[fieldOutput] = wizardField{label: "Output directory", kind: textField, value: cfg.Output}
	fields[fieldHTML] = wizardField{label: "HTML report", kind: toggleField, on: cfg.HTML}
	fields[fieldUnit] = wizardField{label: "Unit tests", kind: textField, value: strings.Join(cfg.Unit, ", ")}
	fields[fieldFunctional] = wizardField{label: "Functional tests", kind: textField, value: strings.Join(cfg.Functional, ", ")}
	fields[fieldFunctionalRoot] = wizardField{label: "Functional root", kind: textField, value: cfg.FunctionalRoot}
	fields[fieldSeleniumJar] = wizardField{label: "Selenium server jar", kind: textField, value: cfg.Services.SeleniumJar}
	return &initWizardModel{
		state:  stateIntro,
		base:   cfg,
		fields: fields,
	}
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		switch m.state {
		case stateIntro:
			m.state = stateEdit
		case stateEdit:
			m.state = stateConfirm
		case stateConfirm:
			m.confirmed = true
			return m, tea.Quit
		}
		return m, nil
	case "esc":
		if m.state == stateConfirm {
			m.state = stateEdit
		}
		return m, nil
	}

	if m.state != stateEdit {
		if key.String() == "q" {
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch key.Type {
	case tea.KeyUp, tea.KeyShiftTab:
		m.moveCursor(-1)
	case tea.KeyDown, tea.KeyTab:
		m.moveCursor(1)
	case tea.KeyBackspace:
		m.deleteRune()
	case tea.KeyLeft, tea.KeyRight:
		m.toggle()
	case tea.KeySpace:
		if m.fields[m.cursor].kind == toggleField {
			m.toggle()
		} else {
			m.insert(" ")
		}
	case tea.KeyRunes:
		m.insert(string(key.Runes))
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *initWizardModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.fields) {
		m.cursor = len(m.fields) - 1
	}
}

func (m *initWizardModel) toggle() {
	f := &m.fields[m.cursor]
	if f.kind == toggleField {
		f.on = !f.on
	}
}

func (m *initWizardModel) insert(s string) {
	f := &m.fields[m.cursor]
	if f.kind == textField {
		f.value += s
	}
}

func (m *initWizardModel) deleteRune() {
	f := &m.fields[m.cursor]
	if f.kind != textField || f.value == "" {
		return
	}
	r := []rune(f.value)
	f.value = string(r[:len(r)-1])
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\ndcov init wizard\n\n")
	fmt.Fprintf(&b, "The wizard writes where coverage goes and which tests feed it.\n\n")
	fmt.Fprintf(&b, "Press Enter to continue, or q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nConfigure the coverage run\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, type to edit, space or ←/→ to toggle.\n\n")
	for idx, f := range m.fields {
		prefix := "  "
		if m.cursor == idx {
			prefix = "> "
		}
		fmt.Fprintf(&b, "%s%s: %s\n", prefix, f.label, f.display())
	}
	fmt.Fprintf(&b, "\nEnter to continue, Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewConfirm() string {
	cfg := m.toConfig()
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	fmt.Fprintf(&b, "Output: %s\n", cfg.Output)
	fmt.Fprintf(&b, "HTML report: %s\n", onOff(cfg.HTML))
	fmt.Fprintf(&b, "Unit tests: %s\n", listOrNone(cfg.Unit))
	if len(cfg.Functional) > 0 {
		fmt.Fprintf(&b, "Functional tests: %s (root %s)\n", strings.Join(cfg.Functional, ", "), cfg.FunctionalRoot)
		if cfg.Services.SeleniumJar == "" {
			fmt.Fprintf(&b, "\nWarning: functional tests need a Selenium server jar.\n")
		}
	} else {
		fmt.Fprintf(&b, "No functional tests configured.\n")
	}
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func (f wizardField) display() string {
	if f.kind == toggleField {
		return onOff(f.on)
	}
	return f.value
}

func (m *initWizardModel) toConfig() application.Config {
	cfg := m.base
	cfg.Output = strings.TrimSpace(m.fields[fieldOutput].value)
	cfg.HTML = m.fields[fieldHTML].on
	cfg.Unit = splitList(m.fields[fieldUnit].value)
	cfg.Functional = splitList(m.fields[fieldFunctional].value)
	cfg.FunctionalRoot = strings.TrimSpace(m.fields[fieldFunctionalRoot].value)
	cfg.Services.SeleniumJar = strings.TrimSpace(m.fields[fieldSeleniumJar].value)
	return cfg
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
