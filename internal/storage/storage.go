package storage

import (
	"context"
	"time"
)

// Статусы выполнения команды.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusLimited = "rate_limited"
)

// CommandRecord фиксирует выполненную команду консоли.
type CommandRecord struct {
	ID        int64         `json:"id"`
	RequestID string        `json:"request_id"`
	Source    string        `json:"source"`
	Subject   string        `json:"subject,omitempty"`
	Command   string        `json:"command"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Status    string        `json:"status"`
	Exit      bool          `json:"exit,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	TS        time.Time     `json:"ts"`
}

// HistoryQuery задает фильтры выборки истории.
type HistoryQuery struct {
	From    time.Time
	To      time.Time
	Source  string
	Subject string
	Limit   int
}

// HistoryWriter позволяет использовать Store как приемник истории.
type HistoryWriter interface {
	Write(ctx context.Context, rec CommandRecord) error
}

// Store описывает операции хранилища истории команд.
type Store interface {
	SaveCommand(ctx context.Context, rec CommandRecord) error
	QueryHistory(ctx context.Context, q HistoryQuery) ([]CommandRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
