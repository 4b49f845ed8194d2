package clients

import (
	"fmt"
	"sync"

	lua "github.com/Shopify/go-lua"

	"embark/internal/console"
	"embark/internal/runcode"
)

// Имена глобальных объектов консоли в порядке регистрации.
const (
	NameIpfsAPI  = "IpfsApi"
	NameWeb3     = "Web3"
	NameEmbarkJS = "EmbarkJS"
)

// Web3Version: версия API клиента блокчейна, видимая в консоли.
const Web3Version = "1.0.0-embark"

// Globals возвращает объекты для регистрации в исполнителе кода.
func Globals(js *EmbarkJS) []console.Global {
	return []console.Global{
		{Name: NameIpfsAPI, Value: IpfsAPI()},
		{Name: NameWeb3, Value: Web3()},
		{Name: NameEmbarkJS, Value: js.Table()},
	}
}

// Web3 возвращает конструктор клиента блокчейна Web3.new(endpoint).
func Web3() runcode.Table {
	return runcode.Table{
		"version": Web3Version,
		"new":     lua.Function(newWeb3),
	}
}

func newWeb3(l *lua.State) int {
	endpoint := lua.OptString(l, 1, "http://localhost:8545")
	l.NewTable()
	l.PushString(endpoint)
	l.SetField(-2, "currentProvider")
	l.PushString(Web3Version)
	l.SetField(-2, "version")
	return 1
}

// IpfsAPI возвращает конструктор клиента децентрализованного хранилища IpfsApi.new(host, port, protocol).
func IpfsAPI() runcode.Table {
	return runcode.Table{
		"new": lua.Function(newIpfs),
	}
}

func newIpfs(l *lua.State) int {
	host := lua.OptString(l, 1, "localhost")
	port := lua.OptString(l, 2, "5001")
	protocol := lua.OptString(l, 3, "http")
	l.NewTable()
	for _, kv := range [][2]string{
		{"host", host},
		{"port", port},
		{"protocol", protocol},
		{"url", fmt.Sprintf("%s://%s:%s", protocol, host, port)},
	} {
		l.PushString(kv[1])
		l.SetField(-2, kv[0])
	}
	return 1
}

// Provider: выбранный провайдер области EmbarkJS.
type Provider struct {
	Name    string
	Options map[string]string
}

// EmbarkJS хранит провайдеров Storage, Messages и Names, выбранных кодом консоли.
type EmbarkJS struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// Области EmbarkJS.
const (
	AreaStorage  = "Storage"
	AreaMessages = "Messages"
	AreaNames    = "Names"
)

// NewEmbarkJS создает пустое пространство EmbarkJS.
func NewEmbarkJS() *EmbarkJS {
	return &EmbarkJS{providers: make(map[string]Provider)}
}

// Provider возвращает провайдера области.
func (e *EmbarkJS) Provider(area string) (Provider, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.providers[area]
	return p, ok
}

// Table строит Lua-таблицу EmbarkJS.Storage/Messages/Names с setProvider и currentProvider.
func (e *EmbarkJS) Table() runcode.Table {
	t := runcode.Table{}
	for _, area := range []string{AreaStorage, AreaMessages, AreaNames} {
		t[area] = runcode.Table{
			"setProvider":     lua.Function(e.setProvider(area)),
			"currentProvider": lua.Function(e.currentProvider(area)),
		}
	}
	return t
}

func (e *EmbarkJS) setProvider(area string) lua.Function {
	return func(l *lua.State) int {
		name := lua.CheckString(l, 1)
		opts := map[string]string{}
		if l.IsTable(2) {
			l.PushNil()
			for l.Next(2) {
				// ключ не приводится к строке на месте, иначе Next собьется
				if l.TypeOf(-2) == lua.TypeString {
					key, _ := l.ToString(-2)
					v, _ := lua.ToStringMeta(l, -1)
					l.Pop(1)
					opts[key] = v
				}
				l.Pop(1)
			}
		}
		e.mu.Lock()
		e.providers[area] = Provider{Name: name, Options: opts}
		e.mu.Unlock()
		return 0
	}
}

func (e *EmbarkJS) currentProvider(area string) lua.Function {
	return func(l *lua.State) int {
		p, ok := e.Provider(area)
		if !ok {
			l.PushNil()
			return 1
		}
		l.PushString(p.Name)
		return 1
	}
}
