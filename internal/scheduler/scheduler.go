// scheduler — фоновая очистка просроченных строк: реестра отозванных
// токенов, refresh-токенов и сессий, каждая со своим интервалом.
//
// Жизненный цикл явный: композиционный корень вызывает Start/Stop ровно
// один раз; сам конструктор таймеров не запускает, так что тесты управляют
// временем детерминированно.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job — одна задача очистки. Run возвращает число обработанных строк.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// Scheduler планирует задачи очистки на независимых интервалах.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	timeout time.Duration
}

// New создаёт планировщик и регистрирует задачи. Задачи с неположительным
// интервалом пропускаются. Ошибки задач логируются и никогда не фатальны.
func New(lg *slog.Logger, timeout time.Duration, jobs ...Job) (*Scheduler, error) {
	const op = "scheduler.New"

	if lg == nil {
		lg = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	s := &Scheduler{
		cron:    cron.New(),
		log:     lg,
		timeout: timeout,
	}

	for _, job := range jobs {
		if job.Interval <= 0 {
			continue
		}

		job := job
		spec := fmt.Sprintf("@every %s", job.Interval)
		if _, err := s.cron.AddFunc(spec, func() { s.runJob(job) }); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return s, nil
}

// Start запускает таймеры планировщика.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает таймеры и дожидается завершения уже идущих задач.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunAll выполняет все задачи один раз вне расписания.
// Используется на старте и в тестах.
func (s *Scheduler) RunAll() {
	for _, entry := range s.cron.Entries() {
		entry.Job.Run()
	}
}

func (s *Scheduler) runJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	count, err := job.Run(ctx)
	if err != nil {
		s.log.Error("cleanup_job_failed",
			slog.String("job", job.Name),
			slog.String("err", err.Error()),
		)
		return
	}

	s.log.Info("cleanup_job_done",
		slog.String("job", job.Name),
		slog.Int64("rows", count),
		slog.Duration("dur", time.Since(start)),
	)
}
