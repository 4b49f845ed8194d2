package console

import (
	"context"
	"fmt"
)

// LegacyFunc описывает устаревшую форму обработчика. Возвращает готовый результат
// либо nil, false или "false", если команда не его.
type LegacyFunc func(cmd string, opts map[string]any) any

// Matcher описывает текущую форму обработчика. Match решает, чья команда, Process ее выполняет.
type Matcher interface {
	Match(cmd string) bool
	Process(ctx context.Context, cmd string) (string, error)
}

// MatcherFuncs позволяет собрать Matcher из двух функций.
type MatcherFuncs struct {
	MatchFunc   func(cmd string) bool
	ProcessFunc func(ctx context.Context, cmd string) (string, error)
}

func (m MatcherFuncs) Match(cmd string) bool {
	return m.MatchFunc != nil && m.MatchFunc(cmd)
}

func (m MatcherFuncs) Process(ctx context.Context, cmd string) (string, error) {
	if m.ProcessFunc == nil {
		return "", nil
	}
	return m.ProcessFunc(ctx, cmd)
}

type handlerKind uint8

const (
	kindLegacy handlerKind = iota + 1
	kindMatchProcess
)

// Handler: обработчик команд плагина; форма фиксируется при регистрации.
type Handler struct {
	kind    handlerKind
	legacy  LegacyFunc
	matcher Matcher
}

// Legacy оборачивает обработчик устаревшей формы.
func Legacy(fn LegacyFunc) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{kind: kindLegacy, legacy: fn}
}

// MatchProcess оборачивает обработчик формы match/process.
func MatchProcess(m Matcher) Handler {
	if m == nil {
		return Handler{}
	}
	return Handler{kind: kindMatchProcess, matcher: m}
}

// Valid сообщает, что обработчик создан через Legacy или MatchProcess.
func (h Handler) Valid() bool { return h.kind != 0 }

// IsLegacy сообщает, что обработчик устаревшей формы.
func (h Handler) IsLegacy() bool { return h.kind == kindLegacy }

func (h Handler) callLegacy(cmd string) (string, bool) {
	return legacyOutput(h.legacy(cmd, map[string]any{}))
}

func legacyOutput(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool:
		if !x {
			return "", false
		}
	case string:
		if x == "false" {
			return "", false
		}
		return x, true
	}
	return fmt.Sprint(v), true
}
