package repl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Subject: идентификатор локального пользователя консоли.
const Subject = "local"

// Options задает параметры REPL.
type Options struct {
	Prompt string
	// Plain отключает терминальный интерфейс: чтение построчно из In.
	Plain bool
	In    io.Reader
	Out   io.Writer
	// Words: известные слова для подсказок "did you mean".
	Words      []string
	Translator Translator
	Logger     *slog.Logger
}

// Adapter запускает интерактивную консоль как транспорт.
type Adapter struct {
	exec Executor
	opts Options

	mu      sync.Mutex
	program *tea.Program
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New создает REPL поверх exec.
func New(exec Executor, opts Options) *Adapter {
	if opts.Prompt == "" {
		opts.Prompt = "Embark > "
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{exec: exec, opts: opts, done: make(chan struct{})}
}

func (a *Adapter) Name() string { return "repl" }

// Start запускает консоль в отдельной горутине; Done закрывается, когда пользователь вышел.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	var program *tea.Program
	if !a.opts.Plain {
		m := newModel(ctx, a.exec, Subject, a.opts.Prompt, a.opts.Words, a.opts.Translator)
		program = tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(a.opts.In), tea.WithOutput(a.opts.Out))
		a.program = program
	}
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		var err error
		if program != nil {
			_, err = program.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				err = nil
			}
		} else {
			err = runPlain(ctx, a.opts.In, a.opts.Out, a.exec, Subject, a.opts.Prompt, a.opts.Words, a.opts.Translator)
		}
		if err != nil {
			a.opts.Logger.Error("repl stopped with error", "error", err)
		}
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
	}()
	return nil
}

// Done закрывается после выхода из консоли.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Err возвращает ошибку завершения консоли.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stop завершает консоль и ждет ее остановки.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel, program := a.cancel, a.program
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if program == nil {
		// построчный режим может висеть на чтении stdin, он завершится на следующей строке
		return nil
	}
	program.Quit()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
