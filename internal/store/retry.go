package store

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// transientPhrases are the known message fragments signaling writer
// contention or a finalize-in-progress condition on the embedded store.
// Matching is a case-insensitive substring check. The set is fixed: anything
// else is a real error and must surface immediately.
var transientPhrases = []string{
	"database is locked",
	"database table is locked",
	"database schema is locked",
	"database is busy",
	"sqlite_busy",
	"unable to close due to unfinalized statements",
	"statements in progress",
}

// IsTransient reports whether an error is transient lock contention that is
// expected to succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// RetryPolicy wraps store calls with bounded exponential backoff on
// transient contention. Non-transient errors propagate on the first attempt.
type RetryPolicy struct {
	// Base is the first backoff interval; attempt n sleeps Base * 2^n.
	Base time.Duration
	// MaxAttempts bounds the guarded attempts before the final call.
	MaxAttempts int
	// Sleep is injectable for tests. Nil means time.Sleep.
	Sleep func(time.Duration)
	// Log, when set, records each backoff at debug level.
	Log *zap.Logger
}

// DefaultRetryPolicy matches the production tuning: 100ms base, 12 attempts
// (worst case a little over three minutes of cumulative backoff).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 100 * time.Millisecond, MaxAttempts: 12}
}

// Do invokes call, retrying on transient contention. After the attempt
// budget is exhausted it performs one final unguarded call, so the error the
// caller sees is the store's own, never a synthetic "retries exhausted".
func (p RetryPolicy) Do(call func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		delay := p.Base << uint(attempt)
		if p.Log != nil {
			p.Log.Debug("store contention, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
		sleep(delay)
	}
	return call()
}
