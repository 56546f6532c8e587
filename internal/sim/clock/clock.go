// Package clock drives decision ticks while the world is running. A tick
// dispatches every due avatar concurrently and the next tick is not
// scheduled until all of them have settled.
package clock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"avatarsim.ai/internal/sim/schedule"
	"avatarsim.ai/internal/sim/world"
)

const (
	// PollInterval is the time-based tick interval at speed 1.
	PollInterval = 50 * time.Millisecond
	MinTick      = 10 * time.Millisecond
)

// Dispatcher runs one decision cycle for an avatar.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string) error
}

type Clock struct {
	store *world.Store
	disp  Dispatcher
	log   *zap.Logger
	poll  time.Duration

	ticks atomic.Uint64
}

type Option func(*Clock)

// WithPollInterval overrides the time-based interval at speed 1.
func WithPollInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.poll = d
		}
	}
}

func New(store *world.Store, disp Dispatcher, opts ...Option) *Clock {
	c := &Clock{store: store, disp: disp, log: store.Logger().Named("clock"), poll: PollInterval}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TickDelay is the wait before the next firing under s.
func TickDelay(s world.SimulationSettings) time.Duration {
	return tickDelay(s, PollInterval)
}

func tickDelay(s world.SimulationSettings, poll time.Duration) time.Duration {
	if s.Mode == world.ModeTimeBased {
		speed := s.Speed
		if speed <= 0 {
			speed = 1
		}
		return max(time.Duration(float64(poll)/speed), MinTick)
	}
	return max(time.Duration(s.TurnDurationMs)*time.Millisecond, MinTick)
}

// Ticks is the number of completed firings.
func (c *Clock) Ticks() uint64 { return c.ticks.Load() }

// Run loops until ctx is canceled. While the world is paused no firings are
// scheduled; resuming starts a fresh delay from the current time.
func (c *Clock) Run(ctx context.Context) error {
	wake, cancel := c.store.Watch()
	defer cancel()

	for {
		w := c.store.Snapshot()
		if !w.Running {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
				continue
			}
		}

		timer := time.NewTimer(tickDelay(w.Settings, c.poll))
		fire := c.wait(ctx, timer, wake)
		timer.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fire {
			c.Tick(ctx)
		}
	}
}

// wait blocks until the timer fires (true) or the world is paused (false).
// Commits that leave the world running keep waiting on the same timer.
func (c *Clock) wait(ctx context.Context, timer *time.Timer, wake <-chan struct{}) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return c.store.Snapshot().Running
		case <-wake:
			if !c.store.Snapshot().Running {
				return false
			}
		}
	}
}

// Tick dispatches every due avatar and waits for all of them. It returns the
// number of avatars dispatched.
func (c *Clock) Tick(ctx context.Context) int {
	due := schedule.Due(c.store.Snapshot(), c.store.Now())
	var wg sync.WaitGroup
	for _, id := range due {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.disp.Dispatch(ctx, id); err != nil {
				if errors.Is(err, world.ErrNotFound) {
					c.log.Debug("avatar removed mid-tick", zap.String("avatar", id))
					return
				}
				c.log.Error("dispatch", zap.String("avatar", id), zap.Error(err))
			}
		}(id)
	}
	wg.Wait()
	n := c.ticks.Add(1)
	if len(due) > 0 {
		c.log.Debug("tick", zap.Uint64("n", n), zap.Int("dispatched", len(due)))
	}
	return len(due)
}
