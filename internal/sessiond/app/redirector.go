package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"authpipe/internal/sessiond/ports/ui"
	"authpipe/pkg/logger"
)

// Константы для логирования.
const (
	LogRedirectScheduled = "redirect scheduled"
	LogRedirectSkipped   = "redirect already pending"
)

// Scheduler запускает fn через delay. По умолчанию time.AfterFunc.
type Scheduler func(delay time.Duration, fn func())

func afterFunc(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

// Redirector планирует переходы пользователя и не допускает больше
// одного ожидающего перехода одновременно.
type Redirector struct {
	navigator ui.Navigator
	schedule  Scheduler
	pending   atomic.Bool
}

// NewRedirector создает Redirector. Если schedule == nil, используется time.AfterFunc.
func NewRedirector(navigator ui.Navigator, schedule Scheduler) *Redirector {
	if schedule == nil {
		schedule = afterFunc
	}
	return &Redirector{
		navigator: navigator,
		schedule:  schedule,
	}
}

// Redirect планирует переход на target через delay. Возвращает false,
// если другой переход уже ожидает выполнения.
func (r *Redirector) Redirect(ctx context.Context, target string, delay time.Duration) bool {
	log := logger.Log(ctx).With(zap.String("target", target))

	if !r.pending.CompareAndSwap(false, true) {
		log.Debug(ctx, LogRedirectSkipped)
		return false
	}

	log.Info(ctx, LogRedirectScheduled, zap.Duration("delay", delay))

	navCtx := context.WithoutCancel(ctx)
	r.schedule(delay, func() {
		defer r.pending.Store(false)
		r.navigator.Navigate(navCtx, target)
	})
	return true
}

// Pending сообщает, что переход запланирован, но еще не выполнен.
func (r *Redirector) Pending() bool {
	return r.pending.Load()
}
