package scheduler

import (
	"context"
	"time"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// DailyScheduler runs a task once per weekday at a fixed exchange-local clock
// time, e.g. the end-of-day close at 15:50.
type DailyScheduler struct {
	Name   string
	Hour   int
	Minute int

	nowFn func() time.Time
}

func NewDailyScheduler(name string, hour, minute int) *DailyScheduler {
	return &DailyScheduler{Name: name, Hour: hour, Minute: minute, nowFn: time.Now}
}

func (s *DailyScheduler) Start(ctx context.Context, task Task) {
	if s == nil || task == nil {
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	prefix := "DailyScheduler"
	if s.Name != "" {
		prefix += "[" + s.Name + "]"
	}
	for {
		now := s.nowFn()
		next := s.next(now)
		logger.Infof("%s: 下次执行=%s (in %s)", prefix, next.Format(time.RFC3339), next.Sub(now).Truncate(time.Second))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("%s: ctx done, exit", prefix)
			return
		case <-timer.C:
		}
		if err := task(ctx); err != nil {
			logger.Errorf("%s: 执行失败: %v", prefix, err)
		}
	}
}

// next is the first weekday slot strictly after now.
func (s *DailyScheduler) next(now time.Time) time.Time {
	loc := market.Exchange()
	et := now.In(loc)
	y, m, d := et.Date()
	at := time.Date(y, m, d, s.Hour, s.Minute, 0, 0, loc)
	for !at.After(et) || at.Weekday() == time.Saturday || at.Weekday() == time.Sunday {
		y, m, d = at.Date()
		at = time.Date(y, m, d+1, s.Hour, s.Minute, 0, 0, loc)
	}
	return at
}
