package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job описывает периодическую задачу.
type Job func(ctx context.Context) error

type namedJob struct {
	name    string
	run     Job
	running atomic.Bool
}

// Scheduler запускает задачи с фиксированным интервалом.
// Задача не запускается повторно, пока не завершился ее предыдущий запуск.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
	jobs     []*namedJob
	wg       sync.WaitGroup
}

// NewScheduler создает scheduler с заданным интервалом.
func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Add добавляет задачу в расписание.
func (s *Scheduler) Add(name string, job Job) {
	s.jobs = append(s.jobs, &namedJob{name: name, run: job})
}

// Start запускает scheduler до отмены контекста.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			s.wg.Wait()
			return
		case <-ticker.C:
			for _, job := range s.jobs {
				if !job.running.CompareAndSwap(false, true) {
					s.logger.Debug("job still running, tick skipped", "job", job.name)
					continue
				}
				s.wg.Add(1)
				go func(job *namedJob) {
					defer s.wg.Done()
					defer job.running.Store(false)
					if err := job.run(ctx); err != nil {
						s.logger.Warn("scheduled job failed", "job", job.name, "error", err)
					}
				}(job)
			}
		}
	}
}
