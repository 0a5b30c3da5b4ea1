package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// NextSend computes when a recurring message fires again after sending
// at ref. Patterns: daily, weekly, monthly (interval-multiplied), or
// cron with the expression in Metadata["cron_expr"].
func NextSend(m *store.ScheduledMessage, ref time.Time) (time.Time, error) {
	interval := m.RecurringInterval
	if interval < 1 {
		interval = 1
	}
	switch m.RecurringPattern {
	case "daily":
		return ref.AddDate(0, 0, interval), nil
	case "weekly":
		return ref.AddDate(0, 0, 7*interval), nil
	case "monthly":
		return ref.AddDate(0, interval, 0), nil
	case "cron":
		expr := m.Metadata["cron_expr"]
		if expr == "" {
			return time.Time{}, fmt.Errorf("cron pattern without cron_expr")
		}
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron %q: %w", expr, err)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("unknown recurring pattern %q", m.RecurringPattern)
	}
}
