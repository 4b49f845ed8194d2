package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"embark/internal/app"
	"embark/internal/config"
	"embark/internal/storage"
	"embark/internal/storage/sqlite"
)

var errNoHistory = errors.New("command history is disabled (sqlite.path is empty)")

type options struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	version    string
}

// New создает корневую CLI-команду.
func New(version string, logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &options{version: version, logger: logger}

	root := &cobra.Command{
		Use:           "embark",
		Short:         "Консоль Embark: исполнение кода, команды плагинов, IPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("EMBARK_CONFIG"), "путь к YAML-конфигу")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConsoleCmd(opts))
	root.AddCommand(newExecCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newHistoryCmd(opts))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		// конфиг для версии не нужен
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func newConsoleCmd(opts *options) *cobra.Command {
	var plain bool
	var mode string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Интерактивная консоль",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(ctx, opts.cfg, app.Options{Version: opts.version, Mode: mode, Logger: opts.logger})
			if err != nil {
				return err
			}
			defer a.Close()

			return a.RunConsole(ctx, app.ConsoleOptions{
				In:    cmd.InOrStdin(),
				Out:   cmd.OutOrStdout(),
				Plain: plain,
			})
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "построчный режим без терминального интерфейса")
	cmd.Flags().StringVar(&mode, "ipc", "", "режим IPC: auto, client, off")
	return cmd
}

func newExecCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Выполнить одну команду консоли",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.NewApp(ctx, opts.cfg, app.Options{Version: opts.version, Logger: opts.logger})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Exec(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if res.Output != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Output)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "таймаут выполнения")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить сервер консоли (IPC и HTTP API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewApp(ctx, opts.cfg, app.Options{
				Version: opts.version,
				Mode:    config.IPCModeServer,
				Logger:  opts.logger,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		q     storage.HistoryQuery
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Показать историю команд",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.SQLite.Path == "" {
				return errNoHistory
			}
			st, err := sqlite.Open(opts.cfg.SQLite.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			if since > 0 {
				q.From = time.Now().UTC().Add(-since)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			records, err := st.QueryHistory(ctx, q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
	cmd.Flags().StringVar(&q.Source, "source", "", "источник: repl, cli, web")
	cmd.Flags().StringVar(&q.Subject, "subject", "", "субъект")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "максимум записей")
	cmd.Flags().DurationVar(&since, "since", 0, "только за последний период, например 24h")
	return cmd
}
