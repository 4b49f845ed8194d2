package console

import (
	"context"
	"log/slog"

	"embark/internal/events"
	"embark/internal/ipc"
)

// Result: итог выполнения команды консоли.
type Result struct {
	Output string `json:"output"`
	// Exit означает, что пользователь запросил завершение; решение о выходе принимает хост.
	Exit bool `json:"exit,omitempty"`
}

// Bus: подмножество шины событий, нужное консоли.
type Bus interface {
	Emit(topic string, args ...any)
	Once(topic string, fn events.Listener)
	SetCommandHandler(topic string, handler events.CommandHandler)
	Request(ctx context.Context, topic string, args ...any) (any, error)
}

// Bridge: подмножество IPC-моста, нужное консоли.
type Bridge interface {
	IsServer() bool
	IsClient() bool
	Connected() bool
	On(topic string, h ipc.Handler)
	Request(ctx context.Context, topic, payload string) (ipc.Reply, error)
}

// Plugins отдает обработчики консоли и источники кода инициализации в порядке регистрации плагинов.
type Plugins interface {
	ConsoleHandlers() []Handler
	InitCodeSources() []InitCodeSource
}

// Dispatcher собирает зависимости консоли; передается явно вместо глобального состояния.
type Dispatcher struct {
	Bus     Bus
	IPC     Bridge
	Plugins Plugins
	Logger  *slog.Logger
}

func (d Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Executor выполняет команду консоли.
type Executor interface {
	Execute(ctx context.Context, cmd string) (Result, error)
}
