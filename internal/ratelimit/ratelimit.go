package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter increments a windowed counter and returns the new value. The
// expiry is applied on every increment so abandoned keys age out.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// Decision reports whether a question may proceed and how much budget
// is left in the tighter of the two windows.
type Decision struct {
	Allowed   bool
	Remaining int64
	Window    string
}

// Limiter enforces the per-caller question budget over an hourly and a
// daily window. Both counters are bumped on every call; the first
// exhausted window denies.
type Limiter struct {
	counter        Counter
	queriesPerHour int64
	queriesPerDay  int64
	now            func() time.Time
}

func NewLimiter(counter Counter, queriesPerHour, queriesPerDay int) (*Limiter, error) {
	if counter == nil {
		return nil, fmt.Errorf("counter is required")
	}
	if queriesPerHour <= 0 {
		queriesPerHour = 20
	}
	if queriesPerDay <= 0 {
		queriesPerDay = 100
	}
	return &Limiter{
		counter:        counter,
		queriesPerHour: int64(queriesPerHour),
		queriesPerDay:  int64(queriesPerDay),
		now:            time.Now,
	}, nil
}

// Allow consumes one unit of budget. A backend failure denies; the
// limiter never fails open.
func (l *Limiter) Allow(ctx context.Context, tenantID, contactID string) (Decision, error) {
	if tenantID == "" || contactID == "" {
		return Decision{}, fmt.Errorf("tenant and contact ids are required")
	}
	now := l.now().UTC()

	hourKey := fmt.Sprintf("payme:ratelimit:hour:%s:%s:%s", tenantID, contactID, now.Format("2006010215"))
	hourCount, err := l.counter.IncrWithExpiry(ctx, hourKey, 2*time.Hour)
	if err != nil {
		return Decision{}, fmt.Errorf("increment hourly counter: %w", err)
	}
	if hourCount > l.queriesPerHour {
		return Decision{Allowed: false, Remaining: 0, Window: "hour"}, nil
	}

	dayKey := fmt.Sprintf("payme:ratelimit:day:%s:%s:%s", tenantID, contactID, now.Format("20060102"))
	dayCount, err := l.counter.IncrWithExpiry(ctx, dayKey, 48*time.Hour)
	if err != nil {
		return Decision{}, fmt.Errorf("increment daily counter: %w", err)
	}
	if dayCount > l.queriesPerDay {
		return Decision{Allowed: false, Remaining: 0, Window: "day"}, nil
	}

	remaining := l.queriesPerHour - hourCount
	if dayRemaining := l.queriesPerDay - dayCount; dayRemaining < remaining {
		remaining = dayRemaining
	}
	return Decision{Allowed: true, Remaining: remaining, Window: "hour"}, nil
}
