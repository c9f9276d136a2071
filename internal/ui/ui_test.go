package ui

import (
	"bufio"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestBold_ContainsText(t *testing.T) {
	Init(false)
	result := Bold("hello")
	if !strings.Contains(result, "hello") {
		t.Errorf("Bold output should contain 'hello', got %q", result)
	}
}

func TestColorDisabled_PlainText(t *testing.T) {
	Init(true) // no color
	defer Init(false)

	if Bold("hello") != "hello" {
		t.Errorf("expected plain text when color disabled, got %q", Bold("hello"))
	}
	if Red("error") != "error" {
		t.Errorf("expected plain text, got %q", Red("error"))
	}
	if Green("ok") != "ok" {
		t.Errorf("expected plain text, got %q", Green("ok"))
	}
	if Yellow("warn") != "warn" {
		t.Errorf("expected plain text, got %q", Yellow("warn"))
	}
	if Dim("dim") != "dim" {
		t.Errorf("expected plain text, got %q", Dim("dim"))
	}
}

func TestLoggerInitialized(t *testing.T) {
	Init(false)
	if Logger == nil {
		t.Error("Logger should be initialized after Init()")
	}
}

func TestLogo_NoErrors(t *testing.T) {
	Init(false)
	// Logo writes to stderr; just verify no panic
	Logo()
	LogoWithTagline("test tagline")
	StepHeader("Suggest Upgrades", 3)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("first answer\r\nlast"))
	if got, err := readLine(r); err != nil || got != "first answer" {
		t.Errorf("readLine() = %q, %v", got, err)
	}
	if got, err := readLine(r); err != nil || got != "last" {
		t.Errorf("readLine() without newline = %q, %v", got, err)
	}
	if _, err := readLine(r); err == nil {
		t.Error("expected EOF")
	}
}

func TestInputModel(t *testing.T) {
	Init(true)
	var m tea.Model = newInputModel("Budget?")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("no budget")})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	im := m.(inputModel)
	if !im.done || im.cancelled {
		t.Fatalf("done=%v cancelled=%v", im.done, im.cancelled)
	}
	if im.input.Value() != "no budget" {
		t.Errorf("value = %q", im.input.Value())
	}
}

func TestInputModelCancel(t *testing.T) {
	Init(true)
	var m tea.Model = newInputModel("Budget?")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !m.(inputModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestSelectModel(t *testing.T) {
	Init(true)
	var m tea.Model = newSelectModel("Decks", []string{"Selvala Ramp", "Marwyn Elves", "Lathril Tokens"})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if got := m.(selectModel).chosen; got != 2 {
		t.Errorf("chosen = %d, want 2", got)
	}
}

func TestConfirmModel(t *testing.T) {
	Init(true)
	var m tea.Model = confirmModel{prompt: "Delete?"}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cm := m.(confirmModel); !cm.decided || cm.accepted {
		t.Errorf("decided=%v accepted=%v", cm.decided, cm.accepted)
	}
}
