package channel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TenantLimiter enforces two token buckets per tenant: messages per
// minute and messages per hour. A send must obtain a token from both.
// Tokens accrue one at a time at even spacing (window/limit) with no
// initial burst, so no window of the given length ever carries more
// than its limit. Safe for concurrent use.
type TenantLimiter struct {
	perMinute int
	perHour   int

	mu      sync.Mutex
	buckets map[string]*tenantBuckets
}

type tenantBuckets struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

// NewTenantLimiter creates a limiter with the given per-tenant rates.
// Non-positive values disable the corresponding bucket.
func NewTenantLimiter(perMinute, perHour int) *TenantLimiter {
	return &TenantLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		buckets:   make(map[string]*tenantBuckets),
	}
}

func (l *TenantLimiter) get(tenantID string) *tenantBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[tenantID]
	if !ok {
		b = &tenantBuckets{}
		if l.perMinute > 0 {
			b.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), 1)
		}
		if l.perHour > 0 {
			b.hour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), 1)
		}
		l.buckets[tenantID] = b
	}
	return b
}

// Wait blocks until the tenant may send one message, or ctx is done.
func (l *TenantLimiter) Wait(ctx context.Context, tenantID string) error {
	b := l.get(tenantID)
	if b.hour != nil {
		if err := b.hour.Wait(ctx); err != nil {
			return err
		}
	}
	if b.minute != nil {
		if err := b.minute.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Allow reports whether a send would pass right now, consuming tokens if
// so. Used by callers that prefer failing fast over blocking.
func (l *TenantLimiter) Allow(tenantID string) bool {
	b := l.get(tenantID)
	var hourRes *rate.Reservation
	if b.hour != nil {
		hourRes = b.hour.ReserveN(time.Now(), 1)
		if !hourRes.OK() || hourRes.Delay() > 0 {
			hourRes.Cancel()
			return false
		}
	}
	if b.minute != nil && !b.minute.Allow() {
		// Give back the hour token.
		if hourRes != nil {
			hourRes.Cancel()
		}
		return false
	}
	return true
}
