package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
)

// Trigger starts a job for a due schedule entry.
type Trigger interface {
	Fire(ctx context.Context, entry Entry) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, entry Entry) error

func (f TriggerFunc) Fire(ctx context.Context, entry Entry) error { return f(ctx, entry) }

// Countdown is one kind's time to its next scheduled run.
type Countdown struct {
	Kind      pulse.Kind `json:"kind"`
	Enabled   bool       `json:"enabled"`
	Remaining string     `json:"remaining,omitempty"` // HH:MM:SS
	Next      string     `json:"next,omitempty"`      // HH:MM of the entry
}

// Ticker is the single scheduling primitive: it fires due entries and
// publishes countdowns that every UI surface subscribes to.
type Ticker struct {
	store    *Store
	trigger  Trigger
	interval time.Duration
	catchUp  bool
	now      func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	fired           int64
	subscribers     []chan []Countdown
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval time.Duration // How often to evaluate schedules (default: 1 second)
	// CatchUpMissed fires an entry whose time passed today without firing, once, on the next tick.
	CatchUpMissed bool
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:      1 * time.Second,
		CatchUpMissed: true,
	}
}

// NewTicker creates a new Pulse ticker
func NewTicker(store *Store, trigger Trigger, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), store, trigger, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, store *Store, trigger Trigger, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		store:    store,
		trigger:  trigger,
		interval: cfg.Interval,
		catchUp:  cfg.CatchUpMissed,
		now:      time.Now,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval, "catch_up", t.catchUp)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Pulse ticker stopped")
}

// SetClock replaces the time source used by the ticker loop. Call before Start.
func (t *Ticker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			now := t.now()
			if err := t.Tick(now); err != nil {
				// Don't spam logs - log errors at warn level
				t.pulseLog.Warnw("Pulse tick error", "error", err, "tick", t.ticksSinceStart)
			}
			t.publishCountdowns(now)
		}
	}
}

// Tick evaluates every enabled kind at now and fires due entries.
// An entry is due when its minute equals now's minute, or, with catch-up,
// when its minute already passed today. Either way it must not have fired today.
// Entries are stamped before the trigger runs, so a failed start is not retried the same day.
func (t *Ticker) Tick(now time.Time) error {
	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	t.mu.Unlock()

	var errs error
	for _, kind := range pulse.Kinds {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}
		if err := t.tickKind(kind, now); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "tick %s", kind))
		}
	}
	return errs
}

func (t *Ticker) tickKind(kind pulse.Kind, now time.Time) error {
	enabled, err := t.store.Enabled(kind)
	if err != nil || !enabled {
		return err
	}
	entries, err := t.store.List(kind)
	if err != nil || len(entries) == 0 {
		return err
	}
	fired, err := t.store.FiredDates(kind)
	if err != nil {
		return err
	}

	today := pulse.DateKey(now)
	nowMin := minuteOfDay(now)

	var (
		due  []string
		last *Entry
	)
	for i := range entries {
		e := entries[i]
		if fired[e.ID] == today {
			continue
		}
		m := e.Minute()
		if m == nowMin || (t.catchUp && m < nowMin) {
			due = append(due, e.ID)
			// Several missed entries collapse into one catch-up run of the latest one
			if last == nil || m > last.Minute() {
				last = &entries[i]
			}
		}
	}
	if last == nil {
		return nil
	}

	if err := t.store.MarkFired(kind, today, due...); err != nil {
		return errors.Wrap(err, "stamp fired entries")
	}

	t.mu.Lock()
	t.fired++
	t.mu.Unlock()

	log := t.pulseLog.With(logger.FieldKind, kind, logger.FieldScheduleID, last.ID)
	if last.Minute() < nowMin {
		log.Infow("Pulse catching up missed schedule", "time", last.Time, "collapsed", len(due))
	} else {
		log.Infow("Pulse schedule due", "time", last.Time)
	}

	if t.trigger == nil {
		return nil
	}
	if err := t.trigger.Fire(t.ctx, *last); err != nil {
		log.Warnw("Scheduled start rejected",
			logger.FieldError, err,
			logger.FieldErrorCode, errors.Code(err))
	}
	return nil
}

// Countdown reports the time to kind's next run at now.
func (t *Ticker) Countdown(kind pulse.Kind, now time.Time) (Countdown, error) {
	c := Countdown{Kind: kind}
	enabled, err := t.store.Enabled(kind)
	if err != nil {
		return c, err
	}
	c.Enabled = enabled
	if !enabled {
		return c, nil
	}
	entries, err := t.store.List(kind)
	if err != nil {
		return c, err
	}
	if e, until, ok := Next(entries, now); ok {
		c.Remaining = FormatCountdown(until)
		c.Next = e.Time
	}
	return c, nil
}

// SubscribeCountdown returns a channel receiving all kinds' countdowns after each tick.
func (t *Ticker) SubscribeCountdown() chan []Countdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan []Countdown, 1)
	t.subscribers = append(t.subscribers, ch)
	return ch
}

// UnsubscribeCountdown removes ch. The caller owns the channel.
func (t *Ticker) UnsubscribeCountdown(ch chan []Countdown) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, sub := range t.subscribers {
		if sub == ch {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

func (t *Ticker) publishCountdowns(now time.Time) {
	t.mu.Lock()
	subs := len(t.subscribers)
	t.mu.Unlock()
	if subs == 0 {
		return
	}

	countdowns := make([]Countdown, 0, len(pulse.Kinds))
	for _, kind := range pulse.Kinds {
		c, err := t.Countdown(kind, now)
		if err != nil {
			t.pulseLog.Debugw("Countdown unavailable", logger.FieldKind, kind, logger.FieldError, err)
			continue
		}
		countdowns = append(countdowns, c)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- countdowns:
		default:
		}
	}
}

// TickerStats reports ticker activity.
type TickerStats struct {
	Interval        time.Duration `json:"interval"`
	LastTickAt      time.Time     `json:"last_tick_at"`
	TicksSinceStart int64         `json:"ticks_since_start"`
	Fired           int64         `json:"fired"`
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() TickerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TickerStats{
		Interval:        t.interval,
		LastTickAt:      t.lastTickAt,
		TicksSinceStart: t.ticksSinceStart,
		Fired:           t.fired,
	}
}
