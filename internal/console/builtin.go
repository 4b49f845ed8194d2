package console

import (
	"sort"
	"strings"

	"embark/internal/i18n"
)

// Translator переводит ключи сообщений.
type Translator interface {
	T(key string) string
}

type identity struct{}

func (identity) T(key string) string { return key }

// Builtins распознает встроенные команды: help и quit/exit с локализованными вариантами.
type Builtins struct {
	help     string
	helpWord string
	exits    map[string]struct{}
}

// NewBuiltins создает обработчик встроенных команд для версии инструмента.
func NewBuiltins(version string, tr Translator) *Builtins {
	if tr == nil {
		tr = identity{}
	}
	exits := map[string]struct{}{}
	// sair и sortir распознаются при любой локали
	for _, w := range []string{"quit", "exit", "sair", "sortir", tr.T("quit"), tr.T("exit")} {
		exits[w] = struct{}{}
	}
	return &Builtins{
		help:     helpText(version, tr),
		helpWord: tr.T("help"),
		exits:    exits,
	}
}

// Process возвращает результат и true для встроенной команды, иначе false.
func (b *Builtins) Process(cmd string) (Result, bool) {
	if cmd == "help" || cmd == b.helpWord {
		return Result{Output: b.help}, true
	}
	if _, ok := b.exits[cmd]; ok {
		return Result{Exit: true}, true
	}
	return Result{}, false
}

// Words возвращает слова встроенных команд, например для подсказок.
func (b *Builtins) Words() []string {
	words := []string{"help"}
	if b.helpWord != "help" {
		words = append(words, b.helpWord)
	}
	exits := make([]string, 0, len(b.exits))
	for w := range b.exits {
		exits = append(exits, w)
	}
	sort.Strings(exits)
	return append(words, exits...)
}

func helpText(version string, tr Translator) string {
	lines := []string{
		tr.T("Welcome to Embark") + " " + version,
		"",
		tr.T("possible commands are:"),
		"versions - " + tr.T(i18n.KeyVersions),
		"ipfs - " + tr.T(i18n.KeyIPFS),
		"web3 - " + tr.T(i18n.KeyWeb3),
		"EmbarkJS - " + tr.T(i18n.KeyEmbarkJS),
		"quit - " + tr.T(i18n.KeyQuit),
		"",
		tr.T(i18n.KeyContracts),
	}
	return strings.Join(lines, "\n")
}
