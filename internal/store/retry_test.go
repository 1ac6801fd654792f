package store

import (
	"errors"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"database is locked", true},
		{"DATABASE IS LOCKED (5)", true},
		{"database table is locked: items", true},
		{"database schema is locked: main", true},
		{"cannot start a transaction: database is busy", true},
		{"SQLITE_BUSY", true},
		{"unable to close due to unfinalized statements", true},
		{"cannot commit transaction - SQL statements in progress", true},
		{"UNIQUE constraint failed: items.id", false},
		{"no such table: items", false},
		{"context canceled", false},
	}
	for _, tc := range cases {
		if got := IsTransient(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) should be false")
	}
}

func TestRetryPolicy_SucceedsAfterContention(t *testing.T) {
	var slept []time.Duration
	p := RetryPolicy{
		Base:        10 * time.Millisecond,
		MaxAttempts: 5,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Exponential: base, then base*2.
	if len(slept) != 2 || slept[0] != 10*time.Millisecond || slept[1] != 20*time.Millisecond {
		t.Errorf("backoff schedule = %v", slept)
	}
}

func TestRetryPolicy_NonTransientFailsFast(t *testing.T) {
	slept := 0
	p := RetryPolicy{
		Base:        time.Millisecond,
		MaxAttempts: 5,
		Sleep:       func(time.Duration) { slept++ },
	}

	boom := errors.New("no such table: items")
	calls := 0
	err := p.Do(func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if slept != 0 {
		t.Errorf("slept %d times, want 0", slept)
	}
}

func TestRetryPolicy_ExhaustionSurfacesStoreError(t *testing.T) {
	p := RetryPolicy{
		Base:        time.Millisecond,
		MaxAttempts: 3,
		Sleep:       func(time.Duration) {},
	}

	calls := 0
	err := p.Do(func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || err.Error() != "database is locked" {
		t.Fatalf("err = %v, want the store's own error", err)
	}
	// Budgeted attempts plus the final unguarded call.
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}
