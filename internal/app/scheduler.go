package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runScheduler recycles the venue connection once a day at reconnect.daily_at UTC.
func (a *App) runScheduler(ctx context.Context) error {
	hour, minute, ok, err := a.cfg.Reconnect.DailyTime()
	if err != nil || !ok {
		return err
	}
	for {
		now := a.now().UTC()
		wait := nextDaily(now, hour, minute).Sub(now)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if a.manager.ForceReconnect() {
			a.log.Info("daily reconnect triggered", zap.String("daily_at", a.cfg.Reconnect.DailyAt))
		} else {
			a.log.Info("daily reconnect skipped: no live connection", zap.String("daily_at", a.cfg.Reconnect.DailyAt))
		}
	}
}

// nextDaily returns the first hour:minute UTC strictly after now.
func nextDaily(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
