package runcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	lua "github.com/Shopify/go-lua"

	"embark/internal/events"
)

var (
	errUnsupportedValue = errors.New("unsupported value type")
	errInvalidArguments = errors.New("invalid arguments")
)

// Table описывает Lua-таблицу; ключи заносятся в алфавитном порядке.
type Table map[string]any

// Evaluator исполняет код консоли в Lua VM. Состояние VM общее для всех команд,
// вызовы сериализуются.
type Evaluator struct {
	mu     sync.Mutex
	state  *lua.State
	out    *strings.Builder
	logger *slog.Logger
}

// New создает исполнитель со стандартными библиотеками Lua; print пишет в вывод команды.
func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{state: lua.NewState(), logger: logger}
	lua.OpenLibraries(e.state)
	e.state.PushGoFunction(e.print)
	e.state.SetGlobal("print")
	return e
}

// Attach подписывает исполнитель на runcode:register и регистрирует обработчик runcode:eval.
func (e *Evaluator) Attach(bus *events.Bus) {
	bus.On(events.TopicRegister, func(args ...any) {
		if len(args) < 2 {
			e.logger.Warn("runcode register: missing arguments")
			return
		}
		name, _ := args[0].(string)
		overwrite := false
		if len(args) > 2 {
			overwrite, _ = args[2].(bool)
		}
		if err := e.Register(name, args[1], overwrite); err != nil {
			e.logger.Warn("runcode register failed", "name", name, "error", err)
		}
	})
	bus.SetCommandHandler(events.TopicEval, func(ctx context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: %w", events.TopicEval, errInvalidArguments)
		}
		code, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: code must be a string: %w", events.TopicEval, errInvalidArguments)
		}
		return e.Eval(ctx, code)
	})
}

// Register задает глобальное имя. Без overwrite существующее значение сохраняется.
func (e *Evaluator) Register(name string, value any, overwrite bool) error {
	if name == "" {
		return fmt.Errorf("global name is empty: %w", errInvalidArguments)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.state
	top := l.Top()
	defer l.SetTop(top)

	if !overwrite {
		l.Global(name)
		exists := !l.IsNil(-1)
		l.Pop(1)
		if exists {
			e.logger.Debug("runcode global kept", "name", name)
			return nil
		}
	}
	if err := push(l, value); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	l.SetGlobal(name)
	return nil
}

// Eval исполняет код и возвращает напечатанный вывод и результаты выражения через табуляцию.
// Код сначала пробуется как выражение, затем как блок операторов.
func (e *Evaluator) Eval(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.state
	top := l.Top()
	defer l.SetTop(top)

	if err := lua.LoadString(l, "return "+code); err != nil {
		l.SetTop(top)
		if err := lua.LoadString(l, code); err != nil {
			return "", fmt.Errorf("syntax: %w", err)
		}
	}

	var out strings.Builder
	e.out = &out
	defer func() { e.out = nil }()

	if err := l.ProtectedCall(0, lua.MultipleReturns, 0); err != nil {
		return "", err
	}

	results := make([]string, 0, l.Top()-top)
	for i := top + 1; i <= l.Top(); i++ {
		results = append(results, toString(l, i))
	}
	if len(results) > 0 {
		out.WriteString(strings.Join(results, "\t"))
	}
	return strings.TrimSuffix(out.String(), "\n"), nil
}

func (e *Evaluator) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, toString(l, i))
	}
	line := strings.Join(parts, "\t") + "\n"
	if e.out != nil {
		e.out.WriteString(line)
	} else {
		e.logger.Info("lua print", "line", strings.TrimSuffix(line, "\n"))
	}
	return 0
}

func toString(l *lua.State, index int) string {
	s, ok := lua.ToStringMeta(l, index)
	l.Pop(1)
	if !ok {
		return lua.TypeNameOf(l, index)
	}
	return s
}

func push(l *lua.State, value any) error {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case string:
		l.PushString(v)
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case lua.Function:
		l.PushGoFunction(v)
	case func(*lua.State) int:
		l.PushGoFunction(v)
	case []lua.RegistryFunction:
		l.NewTable()
		lua.SetFunctions(l, v, 0)
	case Table:
		return pushTable(l, v)
	case map[string]any:
		return pushTable(l, v)
	default:
		return fmt.Errorf("%T: %w", value, errUnsupportedValue)
	}
	return nil
}

func pushTable(l *lua.State, t map[string]any) error {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l.NewTable()
	for _, k := range keys {
		if err := push(l, t[k]); err != nil {
			l.Pop(1)
			return fmt.Errorf("field %s: %w", k, err)
		}
		l.SetField(-2, k)
	}
	return nil
}
