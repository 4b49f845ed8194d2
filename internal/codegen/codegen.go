package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"embark/internal/events"
	"embark/internal/runcode"
)

// DefaultEndpoint используется, если адрес узла блокчейна не задан.
const DefaultEndpoint = "http://localhost:8545"

// Generator отдает код провайдеров для консоли и сообщает о готовности.
type Generator struct {
	endpoint  string
	contracts []string
	logger    *slog.Logger
}

// New создает генератор для узла endpoint; contracts содержит имена развернутых контрактов.
func New(endpoint string, contracts []string, logger *slog.Logger) *Generator {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{endpoint: endpoint, contracts: contracts, logger: logger}
}

// ProviderCode возвращает код, создающий web3 и объекты контрактов.
func (g *Generator) ProviderCode() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "web3 = Web3.new(%s)\n", runcode.Quote(g.endpoint))
	for _, name := range g.contracts {
		if !identifier(name) {
			g.logger.Warn("contract name is not an identifier", "name", name)
			continue
		}
		fmt.Fprintf(&sb, "%s = { name = %s, provider = web3 }\n", name, runcode.Quote(name))
	}
	return sb.String()
}

func identifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Attach регистрирует обработчик запроса кода провайдеров.
func (g *Generator) Attach(bus *events.Bus) {
	bus.SetCommandHandler(events.TopicProviderCode, func(ctx context.Context, args ...any) (any, error) {
		return g.ProviderCode(), nil
	})
}

// Ready сообщает подписчикам, что код провайдеров можно запрашивать.
func (g *Generator) Ready(bus *events.Bus) {
	g.logger.Debug("code generator ready", "endpoint", g.endpoint, "contracts", len(g.contracts))
	bus.Emit(events.TopicCodeGeneratorReady)
}
