package costcontrol

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallTracker counts completion calls per calendar day and enforces a daily limit.
// A limit of zero or less disables enforcement but calls are still counted.
type CallTracker struct {
	mu             sync.Mutex
	dailyCallLimit int
	alertThreshold float64
	now            func() time.Time

	dailyCalls     int
	dailyResetTime time.Time
	alerted        bool
}

// NewCallTracker creates a tracker. alertThreshold is the fraction of the
// daily limit (for example 0.8) at which a warning is logged once per day.
func NewCallTracker(dailyCallLimit int, alertThreshold float64) *CallTracker {
	return newCallTracker(dailyCallLimit, alertThreshold, time.Now)
}

func newCallTracker(dailyCallLimit int, alertThreshold float64, now func() time.Time) *CallTracker {
	ct := &CallTracker{
		dailyCallLimit: dailyCallLimit,
		alertThreshold: alertThreshold,
		now:            now,
	}
	ct.dailyResetTime = nextMidnight(now())
	return ct
}

// Reserve records one call, or returns a *LimitError when the daily limit is reached.
func (ct *CallTracker) Reserve() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.resetDailyIfNeeded()

	if ct.dailyCallLimit > 0 && ct.dailyCalls >= ct.dailyCallLimit {
		return &LimitError{
			Limit:   ct.dailyCallLimit,
			Current: ct.dailyCalls,
			ResetAt: ct.dailyResetTime,
		}
	}
	ct.dailyCalls++

	if ct.dailyCallLimit > 0 && !ct.alerted && ct.alertThreshold > 0 &&
		float64(ct.dailyCalls) >= ct.alertThreshold*float64(ct.dailyCallLimit) {
		ct.alerted = true
		zap.L().Warn("daily completion calls approaching limit",
			zap.Int("calls", ct.dailyCalls),
			zap.Int("limit", ct.dailyCallLimit))
	}
	return nil
}

// resetDailyIfNeeded resets daily counters if a new day has started
func (ct *CallTracker) resetDailyIfNeeded() {
	now := ct.now()
	if now.Before(ct.dailyResetTime) {
		return
	}
	ct.dailyCalls = 0
	ct.alerted = false
	ct.dailyResetTime = nextMidnight(now)
	zap.L().Info("daily call tracking reset", zap.Time("next_reset", ct.dailyResetTime))
}

// Stats returns current usage.
func (ct *CallTracker) Stats() DailyStats {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.resetDailyIfNeeded()

	return DailyStats{
		DailyCalls:    ct.dailyCalls,
		DailyLimit:    ct.dailyCallLimit,
		NextResetTime: ct.dailyResetTime,
	}
}

// DailyStats represents daily usage statistics
type DailyStats struct {
	DailyCalls    int       `json:"dailyCalls"`
	DailyLimit    int       `json:"dailyLimit"`
	NextResetTime time.Time `json:"nextResetTime"`
}

// LimitError is returned by Reserve once the daily limit is used up.
type LimitError struct {
	Limit   int
	Current int
	ResetAt time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily generation limit reached (%d/%d), resets at %s",
		e.Current, e.Limit, e.ResetAt.Format(time.RFC3339))
}

func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
