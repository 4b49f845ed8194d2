package main

import (
	"context"
	"log/slog"
	"os"

	"embark/internal/transports/cli"
	"embark/pkg/logger"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	// терминальная консоль делит stderr с логами, поэтому по умолчанию только предупреждения
	lg := logger.New(os.Stderr, slog.LevelWarn)
	slog.SetDefault(lg)

	root := cli.New(buildVersion(), lg)
	if err := root.ExecuteContext(context.Background()); err != nil {
		lg.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func buildVersion() string {
	v := version
	if commit != "" {
		v += " (" + commit + ")"
	}
	if date != "" {
		v += " " + date
	}
	return v
}
