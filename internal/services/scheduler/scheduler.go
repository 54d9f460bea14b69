// Package scheduler запускает именованные периодические задачи
// координатора с фиксированной задержкой между запусками.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
)

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrDuplicateTask = errors.New("task already registered")
	ErrTaskBusy      = errors.New("task is already running")
)

// Task тело периодической задачи.
type Task func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       Task
	running  sync.Mutex
}

// Scheduler планировщик задач. Перекрывающиеся запуски одной задачи
// пропускаются, паника в задаче не останавливает планировщик.
type Scheduler struct {
	log     *slog.Logger
	cron    *cron.Cron
	metrics *metrics.Metrics

	mu    sync.Mutex
	tasks map[string]*task
	ctx   context.Context
}

func New(log *slog.Logger, m *metrics.Metrics) *Scheduler {
	logger := cronLogger{log: log.With(slog.String("component", "cron"))}
	return &Scheduler{
		log: log,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		metrics: m,
		tasks:   make(map[string]*task),
		ctx:     context.Background(),
	}
}

// Register добавляет задачу с интервалом interval. Интервал округляется
// до секунды, минимум одна секунда.
func (s *Scheduler) Register(name string, interval time.Duration, fn Task) error {
	const op = "scheduler.Register"

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%s: %s: %w", op, name, ErrDuplicateTask)
	}

	t := &task{name: name, interval: interval, fn: fn}
	s.tasks[name] = t
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if err := s.run(s.context(), t); err != nil && !errors.Is(err, ErrTaskBusy) {
			s.log.Error("scheduled task failed", slog.String("task", name), sl.Err(err))
		}
	}))
	s.log.Info("task registered", slog.String("task", name), slog.Duration("interval", interval))
	return nil
}

// RunNow синхронно выполняет задачу вне расписания.
// Если задача уже выполняется, возвращает ErrTaskBusy.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	const op = "scheduler.RunNow"

	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %s: %w", op, name, ErrUnknownTask)
	}
	if err := s.run(ctx, t); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Tasks возвращает имена зарегистрированных задач.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Run запускает расписание и блокируется до отмены ctx, затем дожидается
// завершения выполняющихся задач.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started")
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	if !t.running.TryLock() {
		s.log.Debug("task still running, skipped", slog.String("task", t.name))
		return ErrTaskBusy
	}
	defer t.running.Unlock()

	log := s.log.With(slog.String("task", t.name))
	log.Debug("task started")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
		took := time.Since(start)
		s.metrics.TaskFinished(t.name, took, err)
		if err == nil {
			log.Debug("task finished", slog.Duration("took", took))
		}
	}()

	return t.fn(ctx)
}

// cronLogger направляет журнал cron в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{sl.Err(err)}, keysAndValues...)...)
}
