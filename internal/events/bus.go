package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoHandler возвращается Request, если для темы не зарегистрирован обработчик.
var ErrNoHandler = errors.New("no command handler registered")

var errInvalidArguments = errors.New("invalid arguments")

// Listener получает аргументы события, переданные в Emit.
type Listener func(args ...any)

// CommandHandler отвечает на Request по теме.
type CommandHandler func(ctx context.Context, args ...any) (any, error)

type subscription struct {
	fn   Listener
	once bool
}

// Bus реализует внутрипроцессную шину событий и запросов.
// Обработчики вызываются синхронно в горутине вызывающего.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]*subscription
	handlers  map[string]CommandHandler
	logger    *slog.Logger
}

// New создает пустую шину.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		listeners: make(map[string][]*subscription),
		handlers:  make(map[string]CommandHandler),
		logger:    logger,
	}
}

// On подписывает listener на все события темы.
func (b *Bus) On(topic string, fn Listener) {
	b.subscribe(topic, fn, false)
}

// Once подписывает listener только на первое событие темы.
func (b *Bus) Once(topic string, fn Listener) {
	b.subscribe(topic, fn, true)
}

func (b *Bus) subscribe(topic string, fn Listener, once bool) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[topic] = append(b.listeners[topic], &subscription{fn: fn, once: once})
}

// Emit доставляет событие подписчикам в порядке подписки.
func (b *Bus) Emit(topic string, args ...any) {
	b.mu.Lock()
	subs := b.listeners[topic]
	kept := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if !s.once {
			kept = append(kept, s)
		}
	}
	b.listeners[topic] = kept
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(args...)
	}
}

// SetCommandHandler регистрирует обработчик запросов; повторная регистрация заменяет прежний.
func (b *Bus) SetCommandHandler(topic string, handler CommandHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	_, replaced := b.handlers[topic]
	b.handlers[topic] = handler
	b.mu.Unlock()
	if replaced {
		b.logger.Debug("command handler replaced", "topic", topic)
	}
}

// HasCommandHandler сообщает, есть ли обработчик для темы.
func (b *Bus) HasCommandHandler(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[topic]
	return ok
}

// Request вызывает обработчик темы и возвращает его результат.
func (b *Bus) Request(ctx context.Context, topic string, args ...any) (any, error) {
	if topic == "" {
		return nil, fmt.Errorf("empty topic: %w", errInvalidArguments)
	}
	b.mu.RLock()
	handler, ok := b.handlers[topic]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", topic, ErrNoHandler)
	}
	return handler(ctx, args...)
}
