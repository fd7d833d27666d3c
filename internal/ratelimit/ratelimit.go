// ratelimit — лимитеры аутентификационных запросов с окном и блокировкой.
//
// Используются два независимых экземпляра: щедрый для успешных проверок
// (гасит агрессивный поллинг) и строгий для неуспешных (гасит перебор
// учётных данных) с продлённой блокировкой после исчерпания бюджета.
//
// Redis-бэкенд делает лимиты глобальными для всех инстансов. При сбое
// транспорта каждый инстанс деградирует до локального окна с тем же
// бюджетом: запрос никогда не отклоняется из-за самого сбоя транспорта,
// RateLimitExceeded возможен только при явном исчерпании бюджета.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config — бюджет и окна одного лимитера.
type Config struct {
	// Limit — число списаний на окно.
	Limit int
	// Window — длительность окна.
	Window time.Duration
	// Block — длительность блокировки после исчерпания бюджета;
	// 0 — блокировка не продлевается за пределы окна.
	Block time.Duration
}

// Result — исход одного списания.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter списывает единицы бюджета по ключу клиента.
type Limiter interface {
	Consume(ctx context.Context, key string) (Result, error)
}

// localWindow — состояние одного ключа внутрипроцессного лимитера.
type localWindow struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// LocalLimiter — внутрипроцессный fixed-window лимитер.
// Пер-инстансный: для корректных глобальных лимитов в многоинстансном
// развёртывании нужен общий счётчик (Redis). Это осознанное ограничение,
// а не дефект; используется как самостоятельный бэкенд и как фолбэк
// RedisLimiter при сбое транспорта.
type LocalLimiter struct {
	cfg Config

	mu      sync.Mutex
	windows map[string]*localWindow
}

// NewLocal создаёт внутрипроцессный лимитер.
func NewLocal(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		cfg:     cfg,
		windows: make(map[string]*localWindow),
	}
}

// Consume списывает одну единицу бюджета по ключу. Ошибок не возвращает.
func (l *LocalLimiter) Consume(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	w, ok := l.windows[key]
	if !ok {
		w = &localWindow{windowStart: now}
		l.windows[key] = w
	}

	if w.blockedUntil.After(now) {
		return Result{
			Allowed:    false,
			Limit:      l.cfg.Limit,
			Remaining:  0,
			ResetAt:    w.blockedUntil,
			RetryAfter: w.blockedUntil.Sub(now),
		}, nil
	}

	if now.Sub(w.windowStart) >= l.cfg.Window {
		w.count = 0
		w.windowStart = now
		w.blockedUntil = time.Time{}
	}

	w.count++
	reset := w.windowStart.Add(l.cfg.Window)

	if w.count > l.cfg.Limit {
		retry := reset.Sub(now)
		if l.cfg.Block > 0 {
			w.blockedUntil = now.Add(l.cfg.Block)
			reset = w.blockedUntil
			retry = l.cfg.Block
		}

		return Result{
			Allowed:    false,
			Limit:      l.cfg.Limit,
			Remaining:  0,
			ResetAt:    reset,
			RetryAfter: retry,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     l.cfg.Limit,
		Remaining: l.cfg.Limit - w.count,
		ResetAt:   reset,
	}, nil
}

var _ Limiter = (*LocalLimiter)(nil)
