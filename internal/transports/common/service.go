package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"embark/internal/console"
	"embark/internal/core"
	"embark/internal/storage"
)

// ErrRateLimited возвращается, если субъект превысил лимит команд.
var ErrRateLimited = errors.New("rate limit exceeded")

// Service объединяет общий пайплайн транспорта: authz -> ratelimit -> console -> history.
type Service struct {
	Source      string
	Console     console.Executor
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	History     HistorySink
	Logger      *slog.Logger
}

// Execute выполняет команду от имени subjectID. Пустая команда ничего не делает.
func (s *Service) Execute(ctx context.Context, subjectID, text string) (console.Result, error) {
	cmd := strings.TrimSpace(text)
	if cmd == "" {
		return console.Result{}, nil
	}
	rec := storage.CommandRecord{
		RequestID: newRequestID(),
		Source:    s.Source,
		Subject:   subjectID,
		Command:   cmd,
	}

	if s.Authorizer != nil {
		subject := core.Subject{Source: s.Source, ID: subjectID}
		if err := s.Authorizer.Authorize(subject, core.Action{Command: cmd}); err != nil {
			rec.Status = storage.StatusError
			rec.Error = err.Error()
			s.writeHistory(ctx, rec)
			return console.Result{}, err
		}
	}
	if s.RateLimiter != nil {
		if !s.RateLimiter.Allow(fmt.Sprintf("%s:%s", s.Source, subjectID), time.Now()) {
			rec.Status = storage.StatusLimited
			rec.Error = ErrRateLimited.Error()
			s.writeHistory(ctx, rec)
			return console.Result{}, ErrRateLimited
		}
	}

	started := time.Now()
	res, err := s.Console.Execute(ctx, cmd)
	rec.Duration = time.Since(started)
	rec.Status = storage.StatusOK
	if err != nil {
		rec.Status = storage.StatusError
		rec.Error = err.Error()
	}
	rec.Output = res.Output
	rec.Exit = res.Exit
	s.writeHistory(ctx, rec)
	return res, err
}

func (s *Service) writeHistory(ctx context.Context, rec storage.CommandRecord) {
	if s.History == nil {
		return
	}
	if err := s.History.Write(ctx, rec); err != nil {
		s.logger().Warn("history write failed", "source", rec.Source, "request_id", rec.RequestID, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
