package console

import (
	"context"

	"embark/internal/events"
)

// Global: имя и значение, регистрируемые в исполнителе кода при старте консоли.
type Global struct {
	Name  string
	Value any
}

// Bootstrap регистрирует глобальные объекты консоли и, когда генератор кода готов,
// загружает код провайдеров. Для подключенного IPC-клиента загрузка пропускается:
// провайдеры уже инициализированы на стороне сервера.
type Bootstrap struct {
	d         Dispatcher
	assembler *InitCodeAssembler
	globals   []Global
}

// NewBootstrap создает загрузчик консоли.
func NewBootstrap(d Dispatcher, assembler *InitCodeAssembler, globals []Global) *Bootstrap {
	return &Bootstrap{d: d, assembler: assembler, globals: globals}
}

// Run регистрирует глобальные объекты без перезаписи и подписывается на готовность генератора кода.
func (b *Bootstrap) Run(ctx context.Context) {
	if b.d.Bus == nil {
		return
	}
	for _, g := range b.globals {
		b.d.Bus.Emit(events.TopicRegister, g.Name, g.Value, false)
	}
	b.d.Bus.Once(events.TopicCodeGeneratorReady, func(...any) {
		b.loadProviders(ctx)
	})
}

func (b *Bootstrap) loadProviders(ctx context.Context) {
	if b.d.IPC != nil && b.d.IPC.Connected() {
		return
	}
	code, err := b.d.Bus.Request(ctx, events.TopicProviderCode)
	if err != nil {
		b.d.logger().Debug("provider code unavailable", "error", err)
		return
	}
	b.evalSilently(ctx, stringify(code))
	if b.assembler != nil {
		b.evalSilently(ctx, b.assembler.Assemble())
	}
}

// evalSilently исполняет код, ошибка только пишется в журнал.
func (b *Bootstrap) evalSilently(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if _, err := b.d.Bus.Request(ctx, events.TopicEval, code); err != nil {
		b.d.logger().Debug("silent evaluation failed", "error", err)
	}
}
