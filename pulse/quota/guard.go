// Package quota enforces daily per-action limits, monthly credit balances and
// an hourly action ceiling. Checks are best effort: capacity is read before an
// item and consumption is committed after it, nothing is reserved.
package quota

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
	"github.com/teranos/linkpulse/pulse"
	"github.com/teranos/linkpulse/pulse/kv"
)

// DailyCounters is the stored shape of quota:daily:<dateKey>.
type DailyCounters struct {
	UserID  string        `json:"userId"`
	DateKey string        `json:"dateKey"`
	Used    pulse.Metrics `json:"used"`
}

// MonthlyBalance is the stored shape of quota:monthly:<yearMonthKey>.
type MonthlyBalance struct {
	UserID       string        `json:"userId"`
	YearMonthKey string        `json:"yearMonthKey"`
	Balance      pulse.Credits `json:"balance"`
}

// Capacity answers whether a job can start and roughly how far it can get.
type Capacity struct {
	// Items is how many items current counters allow, capped at the estimate.
	Items     int            `json:"items"`
	Allowed   []pulse.Action `json:"allowed"`
	Exhausted []pulse.Action `json:"exhausted,omitempty"`
	Remaining pulse.Metrics  `json:"remaining"`
	Balance   pulse.Credits  `json:"balance"`
}

// Allowance is the per-item re-check made before every item.
type Allowance struct {
	Allowed   []pulse.Action
	Exhausted []pulse.Action
	// HardLimit means no item of this job can proceed any more.
	HardLimit bool
	Reason    string
}

// Status is the quota view returned to the UI.
type Status struct {
	UserID          string        `json:"userId"`
	DateKey         string        `json:"dateKey"`
	Daily           pulse.Metrics `json:"daily"`
	Limits          pulse.Metrics `json:"limits"`
	Remaining       pulse.Metrics `json:"remaining"`
	YearMonthKey    string        `json:"yearMonthKey"`
	Monthly         pulse.Credits `json:"monthly"`
	Allowance       pulse.Credits `json:"allowance"`
	HourlyUsed      int           `json:"hourlyUsed"`
	HourlyRemaining int           `json:"hourlyRemaining"`
}

// Guard owns every quota key. Only the executor process writes through it.
type Guard struct {
	kv     *kv.Store
	hourly *Limiter
	userID string
	now    func() time.Time
	logger *zap.SugaredLogger

	mu     sync.Mutex // serializes read-modify-write of counters
	planMu sync.RWMutex
	plan   Plan
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock injects the time source used for date keys.
func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

// WithHourlyLimiter adds a sliding-window ceiling across all kinds.
func WithHourlyLimiter(l *Limiter) Option { return func(g *Guard) { g.hourly = l } }

// WithUserID tags stored counters with the account they belong to.
func WithUserID(id string) Option { return func(g *Guard) { g.userID = id } }

// WithLogger sets the guard logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(g *Guard) { g.logger = l } }

// NewGuard creates a guard with the given plan.
func NewGuard(store *kv.Store, plan Plan, opts ...Option) *Guard {
	g := &Guard{
		kv:     store,
		plan:   plan,
		userID: "local",
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logger.AddPulseSymbol(g.logger)
	return g
}

// SetPlan swaps the active plan. Used by config hot reload.
func (g *Guard) SetPlan(p Plan) {
	g.planMu.Lock()
	g.plan = p
	g.planMu.Unlock()
	g.logger.Infow("Plan limits updated",
		"automations", p.Automations,
		"daily", p.Daily,
		"monthly", p.Monthly)
}

// Plan returns the active plan.
func (g *Guard) Plan() Plan {
	g.planMu.RLock()
	defer g.planMu.RUnlock()
	return g.plan
}

// Permitted reports whether the active plan unlocks kind.
func (g *Guard) Permitted(kind pulse.Kind) bool {
	return g.Plan().Permits(kind)
}

// CanStart compares current counters to the plan for a job of kind.
// It does not fail when capacity is zero; the caller decides what that means.
func (g *Guard) CanStart(kind pulse.Kind, opts pulse.Options, estimated int) (*Capacity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	daily, err := g.loadDaily(now)
	if err != nil {
		return nil, err
	}
	monthly, err := g.loadMonthly(now)
	if err != nil {
		return nil, err
	}

	plan := g.Plan()
	a := g.evaluate(plan, opts, daily.Used, monthly.Balance)
	capacity := &Capacity{
		Allowed:   a.Allowed,
		Exhausted: a.Exhausted,
		Remaining: remaining(plan.Daily, daily.Used),
		Balance:   monthly.Balance,
	}
	if a.HardLimit {
		return capacity, nil
	}

	items := 0
	for _, action := range a.Allowed {
		if r := capacity.Remaining.Count(action); r > items {
			items = r
		}
	}
	cost := opts.CreditCost()
	if cost.Import > 0 {
		items = min(items, monthly.Balance.Import/cost.Import)
	}
	if g.hourly != nil {
		if _, left := g.hourly.Stats(); left >= 0 {
			items = min(items, left)
		}
	}
	if estimated >= 0 {
		items = min(items, estimated)
	}
	capacity.Items = items
	return capacity, nil
}

// Allowance re-checks quota before a single item.
func (g *Guard) Allowance(kind pulse.Kind, opts pulse.Options) (*Allowance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	daily, err := g.loadDaily(now)
	if err != nil {
		return nil, err
	}
	monthly, err := g.loadMonthly(now)
	if err != nil {
		return nil, err
	}
	a := g.evaluate(g.Plan(), opts, daily.Used, monthly.Balance)
	return &a, nil
}

func (g *Guard) evaluate(plan Plan, opts pulse.Options, used pulse.Metrics, balance pulse.Credits) Allowance {
	var a Allowance
	cost := opts.CreditCost()

	if cost.Import > 0 && balance.Import < cost.Import {
		a.HardLimit = true
		a.Reason = "monthly import credits exhausted"
		a.Exhausted = opts.Actions()
		return a
	}
	if g.hourly != nil {
		if _, left := g.hourly.Stats(); left == 0 {
			a.HardLimit = true
			a.Reason = "hourly action ceiling reached"
			a.Exhausted = opts.Actions()
			return a
		}
	}

	for _, action := range opts.Actions() {
		switch {
		case used.Count(action) >= plan.Daily.Count(action):
			a.Exhausted = append(a.Exhausted, action)
		case action == pulse.ActionComment && cost.AI > 0 && balance.AI < cost.AI:
			a.Exhausted = append(a.Exhausted, action)
		default:
			a.Allowed = append(a.Allowed, action)
		}
	}
	if len(a.Allowed) == 0 {
		a.HardLimit = true
		a.Reason = fmt.Sprintf("daily limit reached for %v", a.Exhausted)
	}
	return a
}

// Commit records what one successful item actually consumed.
// Daily counters grow by the produced metrics; balances shrink by the credits used, never below zero.
func (g *Guard) Commit(kind pulse.Kind, outcome pulse.Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	daily, err := g.loadDaily(now)
	if err != nil {
		return err
	}
	daily.Used = clampNonNegative(daily.Used.Add(outcome.Metrics))
	if err := g.kv.Put(kv.QuotaDailyKey(daily.DateKey), daily); err != nil {
		return errors.Wrap(err, "commit daily counters")
	}

	if !outcome.Credits.IsZero() {
		monthly, err := g.loadMonthly(now)
		if err != nil {
			return err
		}
		monthly.Balance.Import = max(0, monthly.Balance.Import-outcome.Credits.Import)
		monthly.Balance.AI = max(0, monthly.Balance.AI-outcome.Credits.AI)
		if err := g.kv.Put(kv.QuotaMonthlyKey(monthly.YearMonthKey), monthly); err != nil {
			return errors.Wrap(err, "commit monthly credits")
		}
	}

	if g.hourly != nil {
		g.hourly.Record(outcome.Metrics.Total())
	}

	g.logger.Debugw("Quota committed",
		logger.FieldKind, kind,
		logger.FieldDateKey, daily.DateKey,
		"used", daily.Used,
		"credits", outcome.Credits)
	return nil
}

// Status reports today's counters and this month's balances.
func (g *Guard) Status() (*Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	daily, err := g.loadDaily(now)
	if err != nil {
		return nil, err
	}
	monthly, err := g.loadMonthly(now)
	if err != nil {
		return nil, err
	}
	plan := g.Plan()

	st := &Status{
		UserID:          g.userID,
		DateKey:         daily.DateKey,
		Daily:           daily.Used,
		Limits:          plan.Daily,
		Remaining:       remaining(plan.Daily, daily.Used),
		YearMonthKey:    monthly.YearMonthKey,
		Monthly:         monthly.Balance,
		Allowance:       plan.Monthly,
		HourlyRemaining: -1,
	}
	if g.hourly != nil {
		st.HourlyUsed, st.HourlyRemaining = g.hourly.Stats()
	}
	return st, nil
}

// Days lists the date keys that have daily counters. Keys are never pruned.
func (g *Guard) Days() ([]string, error) {
	keys, err := g.kv.Keys(kv.PrefixQuotaDaily)
	if err != nil {
		return nil, err
	}
	days := make([]string, len(keys))
	for i, k := range keys {
		days[i] = k[len(kv.PrefixQuotaDaily):]
	}
	return days, nil
}

func (g *Guard) loadDaily(now time.Time) (*DailyCounters, error) {
	dateKey := pulse.DateKey(now)
	d := &DailyCounters{UserID: g.userID, DateKey: dateKey}
	if _, err := g.kv.Get(kv.QuotaDailyKey(dateKey), d); err != nil {
		return nil, errors.Wrapf(err, "load daily counters %s", dateKey)
	}
	return d, nil
}

// loadMonthly lazily grants the plan allowance the first time a month is seen.
func (g *Guard) loadMonthly(now time.Time) (*MonthlyBalance, error) {
	ym := pulse.YearMonthKey(now)
	m := &MonthlyBalance{UserID: g.userID, YearMonthKey: ym}
	found, err := g.kv.Get(kv.QuotaMonthlyKey(ym), m)
	if err != nil {
		return nil, errors.Wrapf(err, "load monthly credits %s", ym)
	}
	if !found {
		m.Balance = g.Plan().Monthly
	}
	return m, nil
}

func remaining(limits, used pulse.Metrics) pulse.Metrics {
	var r pulse.Metrics
	for _, a := range pulse.Actions {
		r.Inc(a, max(0, limits.Count(a)-used.Count(a)))
	}
	return r
}

func clampNonNegative(m pulse.Metrics) pulse.Metrics {
	var r pulse.Metrics
	for _, a := range pulse.Actions {
		r.Inc(a, max(0, m.Count(a)))
	}
	return r
}
