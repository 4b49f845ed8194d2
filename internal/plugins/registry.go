package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"embark/internal/console"
)

// Возможности плагина.
const (
	CapabilityConsole         = "console"
	CapabilityInitConsoleCode = "initConsoleCode"
)

var (
	errPluginExists     = errors.New("plugin already registered")
	errUnknownPlugin    = errors.New("unknown plugin")
	errInvalidArguments = errors.New("invalid arguments")
)

// Module определяет контракт подключаемого модуля: в Init он объявляет свои обработчики.
type Module interface {
	Name() string
	Init(ctx context.Context, p *Plugin) error
}

// Info описывает зарегистрированный плагин.
type Info struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Registry хранит плагины в порядке регистрации.
type Registry struct {
	mu      sync.RWMutex
	order   []*Plugin
	plugins map[string]*Plugin
}

// NewRegistry создает пустой реестр плагинов.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]*Plugin)}
}

// Register инициализирует модуль и добавляет его плагин; имя должно быть уникальным.
func (r *Registry) Register(ctx context.Context, m Module) error {
	if m == nil {
		return fmt.Errorf("module is nil: %w", errInvalidArguments)
	}
	name := m.Name()
	if name == "" {
		return fmt.Errorf("module name is empty: %w", errInvalidArguments)
	}
	r.mu.RLock()
	_, exists := r.plugins[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%s: %w", name, errPluginExists)
	}

	p := newPlugin(name)
	if err := m.Init(ctx, p); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("%s: %w", name, errPluginExists)
	}
	r.plugins[name] = p
	r.order = append(r.order, p)
	return nil
}

// Plugin возвращает плагин по имени.
func (r *Registry) Plugin(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errUnknownPlugin)
	}
	return p, nil
}

// Names возвращает имена плагинов в порядке регистрации.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, p := range r.order {
		names = append(names, p.name)
	}
	return names
}

// Infos возвращает описание плагинов в порядке регистрации.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, Info{Name: p.name, Capabilities: p.Capabilities()})
	}
	return out
}

// PluginsFor возвращает плагины с возможностью capability в порядке регистрации.
func (r *Registry) PluginsFor(capability string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, p := range r.order {
		if p.Has(capability) {
			out = append(out, p)
		}
	}
	return out
}

// ConsoleHandlers возвращает обработчики консоли всех плагинов: плагины в порядке
// регистрации, внутри плагина в порядке объявления.
func (r *Registry) ConsoleHandlers() []console.Handler {
	var out []console.Handler
	for _, p := range r.PluginsFor(CapabilityConsole) {
		out = append(out, p.consoleHandlers()...)
	}
	return out
}

// InitCodeSources возвращает плагины, объявившие код инициализации консоли.
func (r *Registry) InitCodeSources() []console.InitCodeSource {
	plugins := r.PluginsFor(CapabilityInitConsoleCode)
	out := make([]console.InitCodeSource, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, p)
	}
	return out
}

// Plugin: объявления одного модуля.
type Plugin struct {
	name     string
	mu       sync.RWMutex
	handlers []console.Handler
	initCode map[console.Category][]console.InitCode
}

func newPlugin(name string) *Plugin {
	return &Plugin{name: name, initCode: make(map[console.Category][]console.InitCode)}
}

// Name возвращает имя плагина.
func (p *Plugin) Name() string { return p.name }

// RegisterConsoleCommand добавляет обработчик устаревшей формы.
func (p *Plugin) RegisterConsoleCommand(fn console.LegacyFunc) error {
	return p.addHandler(console.Legacy(fn))
}

// RegisterConsoleHandler добавляет обработчик формы match/process.
func (p *Plugin) RegisterConsoleHandler(m console.Matcher) error {
	return p.addHandler(console.MatchProcess(m))
}

func (p *Plugin) addHandler(h console.Handler) error {
	if !h.Valid() {
		return fmt.Errorf("%s: console handler is nil: %w", p.name, errInvalidArguments)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
	return nil
}

// AddConsoleProviderInit объявляет блок кода инициализации для категории.
func (p *Plugin) AddConsoleProviderInit(category console.Category, block string, shouldInit console.Predicate) error {
	if !knownCategory(category) {
		return fmt.Errorf("%s: category %q: %w", p.name, category, errInvalidArguments)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initCode[category] = append(p.initCode[category], console.InitCode{Block: block, ShouldInit: shouldInit})
	return nil
}

// InitConsoleCode возвращает блоки категории в порядке объявления.
func (p *Plugin) InitConsoleCode(category console.Category) []console.InitCode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]console.InitCode(nil), p.initCode[category]...)
}

func (p *Plugin) consoleHandlers() []console.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]console.Handler(nil), p.handlers...)
}

// Has сообщает, объявлена ли возможность.
func (p *Plugin) Has(capability string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch capability {
	case CapabilityConsole:
		return len(p.handlers) > 0
	case CapabilityInitConsoleCode:
		return len(p.initCode) > 0
	}
	return false
}

// Capabilities возвращает объявленные возможности в алфавитном порядке.
func (p *Plugin) Capabilities() []string {
	caps := make([]string, 0, 2)
	for _, c := range []string{CapabilityConsole, CapabilityInitConsoleCode} {
		if p.Has(c) {
			caps = append(caps, c)
		}
	}
	sort.Strings(caps)
	return caps
}

func knownCategory(c console.Category) bool {
	for _, known := range console.Categories {
		if c == known {
			return true
		}
	}
	return false
}
