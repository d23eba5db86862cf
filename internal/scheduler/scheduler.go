// Package scheduler decides when a trading cycle runs: aligned to bar closes
// and, optionally, only while the exchange session is open.
package scheduler

import (
	"context"
	"time"

	"smartbot/internal/logger"
	"smartbot/internal/market"
)

// Task is one scheduled run. Its error is logged; the loop keeps going.
type Task func(ctx context.Context) error

// Gate reports whether a run due at t should execute.
type Gate func(t time.Time) bool

// SessionGate admits runs inside the regular US equity session only.
func SessionGate(t time.Time) bool { return market.InRegularSession(t) }

type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool
	Gate           Gate
	// Timeout bounds a single run; zero means none.
	Timeout time.Duration

	nowFn func() time.Time
}

func NewAlignedScheduler(interval, offset time.Duration) *AlignedScheduler {
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Start runs task on every aligned tick until ctx is done.
func (s *AlignedScheduler) Start(ctx context.Context, task Task) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("AlignedScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("AlignedScheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("AlignedScheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("AlignedScheduler: started interval=%s offset=%s run_immediately=%v gated=%v at=%s",
		s.Interval, s.Offset, s.RunImmediately, s.Gate != nil, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		logger.Infof("AlignedScheduler: RunImmediately=true, execute once before alignment loop")
		s.run(ctx, task, startAt)
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wakeAt, untilClose, wait := s.nextTimes(now)
		logger.Infof("AlignedScheduler: 距离K线收盘=%s (收盘=%s) 将在=%s 执行下一轮 | uptime=%s",
			untilClose.Truncate(time.Second),
			nextClose.Format(time.RFC3339),
			wakeAt.Format(time.RFC3339),
			now.Sub(startAt).Truncate(time.Second),
		)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Infof("AlignedScheduler: ctx done, exit")
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		s.run(ctx, task, wakeAt)
	}
}

func (s *AlignedScheduler) run(ctx context.Context, task Task, due time.Time) {
	if s.Gate != nil && !s.Gate(due) {
		logger.Debugf("AlignedScheduler: %s 不在交易时段，跳过", due.In(market.Exchange()).Format("2006-01-02 15:04"))
		return
	}
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := task(runCtx); err != nil {
		logger.Errorf("AlignedScheduler: 本轮执行失败，下一轮重试: %v", err)
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose time.Time, wakeAt time.Time, untilClose time.Duration, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	untilClose = nextClose.Sub(now)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, untilClose, wait
}
