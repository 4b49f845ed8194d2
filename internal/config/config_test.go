package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"embark/internal/console"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embark.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IPC.Mode != IPCModeAuto || cfg.Console.Prompt != "Embark > " {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
console:
  locale: pt-BR
ipc:
  mode: server
storage:
  enabled: true
  provider: swarm
web:
  enabled: true
  auth:
    tokens:
      - id: t1
        token_sha256: abc
        subject: dev
        enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Console.Locale != "pt-BR" || cfg.IPC.Mode != IPCModeServer {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Console.Prompt != "Embark > " {
		t.Fatalf("default prompt lost: %q", cfg.Console.Prompt)
	}
	if len(cfg.Web.Auth.Tokens) != 1 || cfg.Web.Auth.Tokens[0].Subject != "dev" {
		t.Fatalf("tokens not parsed: %+v", cfg.Web.Auth.Tokens)
	}
	storage := cfg.CategoryConfigs()[console.CategoryStorage]
	if !storage.Bool("enabled") || storage.String("provider") != "swarm" {
		t.Fatalf("storage category not parsed: %v", storage)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("EMBARK_IPC_MODE", "off")
	t.Setenv("EMBARK_LOCALE", "fr")
	t.Setenv("EMBARK_CONTRACTS", "Token,SimpleStorage")
	cfg, err := Load(writeConfig(t, "ipc:\n  mode: client\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IPC.Mode != IPCModeOff || cfg.Console.Locale != "fr" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.Blockchain.Contracts) != 2 || cfg.Blockchain.Contracts[1] != "SimpleStorage" {
		t.Fatalf("unexpected contracts: %v", cfg.Blockchain.Contracts)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Default()
	cfg.IPC.Mode = "mesh"
	if err := cfg.Validate(); !errors.Is(err, errUnknownIPCMode) {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
	cfg.IPC.Mode = IPCModeServer
	cfg.IPC.SocketPath = ""
	if err := cfg.Validate(); !errors.Is(err, errEmptySocket) {
		t.Fatalf("expected empty socket error, got %v", err)
	}
}

func TestValidateLocale(t *testing.T) {
	cfg := Default()
	for _, locale := range []string{"", "en", "pt-BR", "fr-CA", "pt_PT"} {
		cfg.Console.Locale = locale
		if err := cfg.Validate(); err != nil {
			t.Fatalf("locale %q rejected: %v", locale, err)
		}
	}
	cfg.Console.Locale = "de"
	if err := cfg.Validate(); !errors.Is(err, errUnknownLocale) {
		t.Fatalf("expected unknown locale error, got %v", err)
	}
}
