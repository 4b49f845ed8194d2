package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// TransportAdapter определяет жизненный цикл входного транспорта.
type TransportAdapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TransportManager запускает транспорты в порядке регистрации и останавливает в обратном.
type TransportManager struct {
	mu         sync.Mutex
	order      []TransportAdapter
	transports map[string]TransportAdapter
}

// NewTransportManager создает пустой менеджер транспортов.
func NewTransportManager() *TransportManager {
	return &TransportManager{transports: make(map[string]TransportAdapter)}
}

// Register добавляет транспорт; имена должны быть уникальны.
func (m *TransportManager) Register(adapter TransportAdapter) error {
	if adapter == nil {
		return fmt.Errorf("transport is nil: %w", errInvalidArguments)
	}
	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("transport name is empty: %w", errInvalidArguments)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transports[name]; exists {
		return fmt.Errorf("%s: %w", name, errTransportExists)
	}
	m.transports[name] = adapter
	m.order = append(m.order, adapter)
	return nil
}

// Names возвращает имена транспортов в порядке регистрации.
func (m *TransportManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.order))
	for _, tr := range m.order {
		names = append(names, tr.Name())
	}
	return names
}

func (m *TransportManager) snapshot() []TransportAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransportAdapter(nil), m.order...)
}

// StartAll запускает транспорты; при ошибке уже запущенные останавливаются.
func (m *TransportManager) StartAll(ctx context.Context) error {
	list := m.snapshot()
	for i, tr := range list {
		if err := tr.Start(ctx); err != nil {
			startErr := fmt.Errorf("start transport %s: %w", tr.Name(), err)
			return errors.Join(startErr, stopReverse(ctx, list[:i]))
		}
	}
	return nil
}

// StopAll останавливает все транспорты и возвращает все ошибки остановки.
func (m *TransportManager) StopAll(ctx context.Context) error {
	return stopReverse(ctx, m.snapshot())
}

func stopReverse(ctx context.Context, list []TransportAdapter) error {
	var errs []error
	for i := len(list) - 1; i >= 0; i-- {
		tr := list[i]
		if err := tr.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop transport %s: %w", tr.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// StopOne останавливает конкретный транспорт по имени.
func (m *TransportManager) StopOne(ctx context.Context, name string) error {
	m.mu.Lock()
	tr, ok := m.transports[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, errUnknownTransport)
	}
	if err := tr.Stop(ctx); err != nil {
		return fmt.Errorf("stop transport %s: %w", tr.Name(), err)
	}
	return nil
}
