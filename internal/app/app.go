package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"embark/internal/clients"
	"embark/internal/codegen"
	"embark/internal/config"
	"embark/internal/console"
	"embark/internal/core"
	"embark/internal/events"
	"embark/internal/i18n"
	"embark/internal/ipc"
	"embark/internal/modules/providers"
	"embark/internal/modules/versions"
	"embark/internal/plugins"
	"embark/internal/runcode"
	"embark/internal/storage"
	"embark/internal/storage/sqlite"
	"embark/internal/transports/common"
	"embark/internal/transports/repl"
	"embark/internal/transports/web"
)

// Источники команд для истории.
const (
	SourceREPL = "repl"
	SourceCLI  = "cli"
)

// Options задает параметры сборки приложения.
type Options struct {
	Version string
	// Mode переопределяет cfg.IPC.Mode, например serve всегда поднимает сервер.
	Mode   string
	Logger *slog.Logger
}

// App агрегирует зависимости консоли.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Bus        *events.Bus
	Plugins    *plugins.Registry
	Bridge     *ipc.Bridge
	Router     *console.Router
	Builtins   *console.Builtins
	Translator *i18n.Translator
	Store      storage.Store
	Limiter    *common.RateLimiter
	Authorizer core.Authorizer
	Transports *core.TransportManager
}

// NewApp строит приложение: исполнитель кода, плагины, IPC-мост, маршрутизатор консоли и хранилище.
func NewApp(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.Mode
	if mode == "" {
		mode = cfg.IPC.Mode
	}

	tr, err := i18n.New(cfg.Console.Locale)
	if err != nil {
		return nil, fmt.Errorf("init translator: %w", err)
	}

	registry := plugins.NewRegistry()
	if err := registry.Register(ctx, versions.New(opts.Version, clients.Web3Version)); err != nil {
		return nil, fmt.Errorf("register versions plugin: %w", err)
	}
	for _, p := range providers.All(cfg.CategoryConfigs()) {
		if err := registry.Register(ctx, p); err != nil {
			return nil, fmt.Errorf("register %s plugin: %w", p.Name(), err)
		}
	}

	transports := core.NewTransportManager()
	bridge, err := openBridge(ctx, mode, cfg, logger)
	if err != nil {
		return nil, err
	}
	if bridge.IsServer() {
		if err := transports.Register(bridge); err != nil {
			return nil, fmt.Errorf("register ipc transport: %w", err)
		}
	}

	bus := events.New(logger)
	// подключенный клиент исполняет код на сервере, локальный исполнитель не нужен
	if !bridge.Connected() {
		runcode.New(logger).Attach(bus)
	}

	d := console.Dispatcher{Bus: bus, IPC: bridge, Plugins: registry, Logger: logger}
	builtins := console.NewBuiltins(opts.Version, tr)
	router := console.NewRouter(d, builtins)
	console.Attach(bus, bridge, router)

	assembler := console.NewInitCodeAssembler(registry, cfg.CategoryConfigs())
	console.NewBootstrap(d, assembler, clients.Globals(clients.NewEmbarkJS())).Run(ctx)
	gen := codegen.New(cfg.Blockchain.Endpoint, cfg.Blockchain.Contracts, logger)
	gen.Attach(bus)
	gen.Ready(bus)

	st, err := openStore(cfg.SQLite.Path)
	if err != nil {
		_ = bridge.Stop(context.Background())
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Bus:        bus,
		Plugins:    registry,
		Bridge:     bridge,
		Router:     router,
		Builtins:   builtins,
		Translator: tr,
		Store:      st,
		Limiter:    common.NewRateLimiter(cfg.Limits.CommandsPerSecond, time.Second),
		Authorizer: core.NewAllowlistAuthorizer(cfg.Security.AuthAllowlist),
		Transports: transports,
	}

	if cfg.Web.Enabled {
		if err := transports.Register(a.newWebAdapter()); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register web transport: %w", err)
		}
	}
	return a, nil
}

func openBridge(ctx context.Context, mode string, cfg config.Config, logger *slog.Logger) (*ipc.Bridge, error) {
	dialTimeout := time.Duration(cfg.IPC.DialTimeoutMS) * time.Millisecond
	switch mode {
	case config.IPCModeServer:
		return ipc.NewServer(cfg.IPC.SocketPath, logger), nil
	case config.IPCModeClient:
		client := ipc.NewClient(cfg.IPC.SocketPath, dialTimeout, logger)
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("connect to console server: %w", err)
		}
		return client, nil
	case config.IPCModeAuto:
		client := ipc.NewClient(cfg.IPC.SocketPath, dialTimeout, logger)
		if err := client.Start(ctx); err != nil {
			logger.Debug("console server not reachable, running standalone", "path", cfg.IPC.SocketPath, "error", err)
			return ipc.Disabled(), nil
		}
		return client, nil
	default:
		return ipc.Disabled(), nil
	}
}

func openStore(path string) (storage.Store, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return st, nil
}

// Service возвращает пайплайн выполнения команд для источника source.
func (a *App) Service(source string, authorizer core.Authorizer) *common.Service {
	svc := &common.Service{
		Source:      source,
		Console:     a.Router,
		Authorizer:  authorizer,
		RateLimiter: a.Limiter,
		Logger:      a.Logger,
	}
	if w, ok := a.Store.(storage.HistoryWriter); ok {
		svc.History = w
	}
	return svc
}

func (a *App) newWebAdapter() *web.Adapter {
	cfg := a.Config.Web
	tokens := make([]web.TokenEntry, 0, len(cfg.Auth.Tokens))
	for _, token := range cfg.Auth.Tokens {
		tokens = append(tokens, web.TokenEntry{
			ID:          token.ID,
			TokenSHA256: token.TokenSHA256,
			Subject:     token.Subject,
			Enabled:     token.Enabled,
		})
	}
	deps := web.Deps{
		Exec:       a.Service(web.Source, a.Authorizer),
		Authorizer: a.Authorizer,
		Plugins:    a.Plugins,
		Logger:     a.Logger,
	}
	if a.Store != nil {
		deps.History = a.Store
	}
	return web.NewAdapter(deps, web.Config{
		ListenAddr:               cfg.ListenAddr,
		ReadTimeout:              time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:             time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		RequestTimeout:           time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		ShutdownTimeout:          time.Duration(cfg.ShutdownTimeoutS) * time.Second,
		MaxRequestBody:           cfg.MaxBodyBytes,
		AllowLegacySubjectHeader: cfg.Auth.AllowLegacySubjectHeader,
		Tokens:                   tokens,
		CORSAllowedOrigins:       cfg.CORS.AllowedOrigins,
		CORSAllowedMethods:       cfg.CORS.AllowedMethods,
		CORSAllowedHeaders:       cfg.CORS.AllowedHeaders,
	})
}

// Exec выполняет одну команду от имени локального пользователя.
func (a *App) Exec(ctx context.Context, cmd string) (console.Result, error) {
	return a.Service(SourceCLI, nil).Execute(ctx, repl.Subject, cmd)
}

// ConsoleOptions задает ввод и вывод интерактивной консоли.
type ConsoleOptions struct {
	In    io.Reader
	Out   io.Writer
	Plain bool
}

// RunConsole запускает транспорты и интерактивную консоль; возвращается, когда пользователь вышел
// или отменен контекст.
func (a *App) RunConsole(ctx context.Context, opts ConsoleOptions) error {
	term := repl.New(a.Service(SourceREPL, nil), repl.Options{
		Prompt:     a.Config.Console.Prompt,
		Plain:      opts.Plain || a.Config.Console.Plain,
		In:         opts.In,
		Out:        opts.Out,
		Words:      a.Builtins.Words(),
		Translator: a.Translator,
		Logger:     a.Logger,
	})
	if err := a.Transports.Register(term); err != nil {
		return fmt.Errorf("register repl transport: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.runScheduler(ctx)

	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer a.stopTransports()

	select {
	case <-term.Done():
		return term.Err()
	case <-ctx.Done():
		return nil
	}
}

// Serve запускает транспорты и планировщик до отмены контекста.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer a.stopTransports()

	a.Logger.Info("console server started", "transports", a.Transports.Names(), "ipc", a.Bridge.Role().String())
	a.runScheduler(ctx)
	return ctx.Err()
}

func (a *App) stopTransports() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Transports.StopAll(stopCtx); err != nil {
		a.Logger.Warn("stop transports", "error", err)
	}
}

// runScheduler чистит устаревшую историю и состояние ограничителя до отмены контекста.
func (a *App) runScheduler(ctx context.Context) {
	interval := time.Duration(a.Config.Scheduler.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	sched := core.NewScheduler(interval, a.Logger)

	sched.Add("limiter-prune", func(context.Context) error {
		if n := a.Limiter.Prune(time.Now()); n > 0 {
			a.Logger.Debug("rate limiter pruned", "keys", n)
		}
		return nil
	})
	if a.Store != nil && a.Config.SQLite.RetentionDays > 0 {
		retention := time.Duration(a.Config.SQLite.RetentionDays) * 24 * time.Hour
		sched.Add("history-prune", func(jobCtx context.Context) error {
			runCtx, cancel := context.WithTimeout(jobCtx, 10*time.Second)
			defer cancel()
			n, err := a.Store.Prune(runCtx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				a.Logger.Info("history pruned", "records", n)
			}
			return nil
		})
	}

	sched.Start(ctx)
}

// Close высвобождает ресурсы приложения.
func (a *App) Close() error {
	if a.Bridge != nil && a.Bridge.IsClient() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = a.Bridge.Stop(stopCtx)
		cancel()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
