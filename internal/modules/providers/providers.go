package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"embark/internal/clients"
	"embark/internal/console"
	"embark/internal/plugins"
	"embark/internal/runcode"
)

// Module объявляет код инициализации провайдера EmbarkJS для одной категории.
// Блок включается, если категория включена и выбран именно этот провайдер.
type Module struct {
	provider string
	category console.Category
	area     string
	cfg      console.CategoryConfig
}

// Whisper: провайдер обмена сообщениями.
func Whisper(cfg console.CategoryConfig) *Module {
	return &Module{provider: "whisper", category: console.CategoryCommunication, area: clients.AreaMessages, cfg: cfg}
}

// ENS: провайдер имен.
func ENS(cfg console.CategoryConfig) *Module {
	return &Module{provider: "ens", category: console.CategoryNames, area: clients.AreaNames, cfg: cfg}
}

// IPFS: провайдер хранилища ipfs.
func IPFS(cfg console.CategoryConfig) *Module {
	return &Module{provider: "ipfs", category: console.CategoryStorage, area: clients.AreaStorage, cfg: cfg}
}

// Swarm: провайдер хранилища swarm.
func Swarm(cfg console.CategoryConfig) *Module {
	return &Module{provider: "swarm", category: console.CategoryStorage, area: clients.AreaStorage, cfg: cfg}
}

// All возвращает встроенные провайдеры в порядке регистрации.
func All(configs map[console.Category]console.CategoryConfig) []*Module {
	return []*Module{
		Whisper(configs[console.CategoryCommunication]),
		ENS(configs[console.CategoryNames]),
		IPFS(configs[console.CategoryStorage]),
		Swarm(configs[console.CategoryStorage]),
	}
}

func (m *Module) Name() string { return m.provider }

func (m *Module) Init(ctx context.Context, p *plugins.Plugin) error {
	return p.AddConsoleProviderInit(m.category, m.Block(), m.ShouldInit)
}

// ShouldInit проверяет, что категория включена и выбран этот провайдер.
func (m *Module) ShouldInit(cfg console.CategoryConfig) bool {
	return cfg.Bool("enabled") && cfg.String("provider") == m.provider
}

// Block возвращает вызов setProvider с параметрами из конфигурации.
func (m *Module) Block() string {
	return fmt.Sprintf("EmbarkJS.%s.setProvider(%s, %s)\n", m.area, runcode.Quote(m.provider), options(m.cfg))
}

func options(cfg console.CategoryConfig) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		if k == "enabled" || k == "provider" {
			continue
		}
		switch cfg[k].(type) {
		case string, int, int64, float64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("[%s]=%s", runcode.Quote(k), runcode.Quote(fmt.Sprint(cfg[k]))))
	}
	return "{" + strings.Join(fields, ", ") + "}"
}
