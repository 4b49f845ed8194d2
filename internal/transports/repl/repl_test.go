package repl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"embark/internal/console"
)

type scriptedExecutor struct {
	calls   []string
	results map[string]console.Result
	errs    map[string]error
}

func (s *scriptedExecutor) Execute(ctx context.Context, subjectID, text string) (console.Result, error) {
	s.calls = append(s.calls, text)
	if err, ok := s.errs[text]; ok {
		return console.Result{}, err
	}
	return s.results[text], nil
}

func typeText(t *testing.T, m tea.Model, text string) tea.Model {
	t.Helper()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func press(t *testing.T, m tea.Model, key tea.KeyType) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(tea.KeyMsg{Type: key})
}

func submit(t *testing.T, m tea.Model, text string) (tea.Model, tea.Cmd) {
	t.Helper()
	m = typeText(t, m, text)
	m, cmd := press(t, m, tea.KeyEnter)
	if cmd == nil {
		t.Fatalf("enter on %q produced no command", text)
	}
	return m.Update(cmd())
}

func TestModelExecutesCommand(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]console.Result{"1+1": {Output: "2"}}}
	var m tea.Model = newModel(context.Background(), exec, Subject, "> ", nil, nil)

	m, cmd := submit(t, m, "1+1")
	if cmd != nil {
		t.Fatalf("plain result must not quit")
	}
	if len(exec.calls) != 1 || exec.calls[0] != "1+1" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	if view := m.View(); !strings.Contains(view, "2") {
		t.Fatalf("output not rendered:\n%s", view)
	}
}

func TestModelExitQuits(t *testing.T) {
	exec := &scriptedExecutor{results: map[string]console.Result{"quit": {Exit: true}}}
	var m tea.Model = newModel(context.Background(), exec, Subject, "> ", nil, nil)
	_, cmd := submit(t, m, "quit")
	if cmd == nil {
		t.Fatalf("exit result must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestModelSuggestsOnError(t *testing.T) {
	exec := &scriptedExecutor{errs: map[string]error{"hepl": errors.New("hepl is not defined")}}
	var m tea.Model = newModel(context.Background(), exec, Subject, "> ", []string{"help", "quit"}, nil)
	m, _ = submit(t, m, "hepl")
	view := m.View()
	if !strings.Contains(view, "hepl is not defined") || !strings.Contains(view, "did you mean help?") {
		t.Fatalf("expected error and suggestion:\n%s", view)
	}
}

func TestModelBlankSkipsExecution(t *testing.T) {
	exec := &scriptedExecutor{}
	var m tea.Model = newModel(context.Background(), exec, Subject, "> ", nil, nil)
	_, cmd := press(t, m, tea.KeyEnter)
	if cmd != nil {
		t.Fatalf("blank line must not execute")
	}
	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}

func TestModelHistoryRecall(t *testing.T) {
	exec := &scriptedExecutor{}
	var m tea.Model = newModel(context.Background(), exec, Subject, "> ", nil, nil)
	m, _ = submit(t, m, "first")
	m, _ = submit(t, m, "second")

	m, _ = press(t, m, tea.KeyUp)
	if v := m.(model).input.Value(); v != "second" {
		t.Fatalf("expected second, got %q", v)
	}
	m, _ = press(t, m, tea.KeyUp)
	m, _ = press(t, m, tea.KeyUp)
	if v := m.(model).input.Value(); v != "first" {
		t.Fatalf("expected first, got %q", v)
	}
	m, _ = press(t, m, tea.KeyDown)
	m, _ = press(t, m, tea.KeyDown)
	if v := m.(model).input.Value(); v != "" {
		t.Fatalf("expected empty input past newest entry, got %q", v)
	}
}

func TestModelCtrlCQuits(t *testing.T) {
	var m tea.Model = newModel(context.Background(), &scriptedExecutor{}, Subject, "> ", nil, nil)
	_, cmd := press(t, m, tea.KeyCtrlC)
	if cmd == nil {
		t.Fatalf("ctrl+c must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestPlainMode(t *testing.T) {
	exec := &scriptedExecutor{
		results: map[string]console.Result{
			"1+1":  {Output: "2"},
			"quit": {Exit: true},
		},
		errs: map[string]error{"qiut": errors.New("unknown")},
	}
	in := strings.NewReader("1+1\nqiut\nquit\nnever\n")
	var out bytes.Buffer
	a := New(exec, Options{Prompt: "> ", Plain: true, In: in, Out: &out, Words: []string{"quit"}})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("plain repl did not finish")
	}
	if a.Err() != nil {
		t.Fatalf("unexpected error: %v", a.Err())
	}
	if len(exec.calls) != 3 {
		t.Fatalf("commands after quit must not run: %v", exec.calls)
	}
	got := out.String()
	for _, want := range []string{"> 2\n", "unknown\n", "did you mean quit?\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output misses %q:\n%s", want, got)
		}
	}
}

func TestPlainModeEOF(t *testing.T) {
	exec := &scriptedExecutor{}
	a := New(exec, Options{Plain: true, In: strings.NewReader(""), Out: &bytes.Buffer{}})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("plain repl did not stop on EOF")
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
