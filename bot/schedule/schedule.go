package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/cubeglobe-bot/bot/config"
)

// Delays is the retry backoff after a failed post: 30 seconds, 1 minute,
// 5 minutes, then 15 minutes for every further attempt.
var Delays = []time.Duration{
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// Backoff returns how long to wait after the given 1-based failed attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(Delays) {
		return Delays[len(Delays)-1]
	}
	return Delays[attempt-1]
}

// Schedule decides when the next post is due given the previous one.
type Schedule interface {
	Next(last time.Time) time.Time
}

// Interval posts every Every, shifted by a uniform random offset in
// [-Jitter, Jitter).
type Interval struct {
	Every  time.Duration
	Jitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewInterval creates an interval schedule drawing jitter from rng.
func NewInterval(every, jitter time.Duration, rng *rand.Rand) *Interval {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Interval{Every: every, Jitter: jitter, rng: rng}
}

// Next implements Schedule.
func (i *Interval) Next(last time.Time) time.Time {
	wait := i.Every
	if i.Jitter > 0 {
		i.mu.Lock()
		offset := time.Duration(i.rng.Int63n(int64(2*i.Jitter))) - i.Jitter
		i.mu.Unlock()
		wait += offset
	}
	return last.Add(wait)
}

// Cron posts at the activations of a standard five-field cron expression.
type Cron struct {
	spec  string
	sched cron.Schedule
	loc   *time.Location
}

// NewCron parses spec with the standard cron parser, evaluated in loc.
func NewCron(spec string, loc *time.Location) (*Cron, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Cron{spec: spec, sched: sched, loc: loc}, nil
}

// Next implements Schedule.
func (c *Cron) Next(last time.Time) time.Time {
	return c.sched.Next(last.In(c.loc))
}

// String returns the cron expression.
func (c *Cron) String() string {
	return c.spec
}

// FromConfig builds the cron schedule when bot.schedule is set and the
// interval schedule otherwise.
func FromConfig(cfg *config.Config, rng *rand.Rand) (Schedule, error) {
	if cfg.Bot.Schedule == "" {
		return NewInterval(cfg.Bot.SleepDuration(), cfg.Bot.JitterDuration(), rng), nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	return NewCron(cfg.Bot.Schedule, loc)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
