package versions

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"embark/internal/console"
	"embark/internal/plugins"
)

// LuaVersion: версия языка исполнителя кода консоли.
const LuaVersion = "Lua 5.2 (Shopify/go-lua)"

// HostInfo возвращает описание платформы узла.
type HostInfo func(ctx context.Context) (*host.InfoStat, error)

// Module предоставляет консольную команду versions.
type Module struct {
	tool     string
	web3     string
	hostInfo HostInfo
}

// New создает модуль для версии инструмента tool и версии клиента web3.
func New(tool, web3 string) *Module {
	return &Module{tool: tool, web3: web3, hostInfo: host.InfoWithContext}
}

func (m *Module) Name() string { return "versions" }

func (m *Module) Init(ctx context.Context, p *plugins.Plugin) error {
	return p.RegisterConsoleHandler(m)
}

// Match принимает только команду versions.
func (m *Module) Match(cmd string) bool {
	return cmd == "versions"
}

// Process перечисляет версии библиотек и инструментов.
func (m *Module) Process(ctx context.Context, cmd string) (string, error) {
	info, err := m.hostInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("host info: %w", err)
	}
	platform := strings.TrimSpace(fmt.Sprintf("%s %s %s", info.Platform, info.PlatformVersion, info.KernelArch))
	lines := []string{
		"versions in use:",
		"embark: " + m.tool,
		"web3: " + m.web3,
		"lua: " + LuaVersion,
		"go: " + runtime.Version(),
		"platform: " + platform,
		"kernel: " + info.KernelVersion,
	}
	return strings.Join(lines, "\n"), nil
}

var _ console.Matcher = (*Module)(nil)
