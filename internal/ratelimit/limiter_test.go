package ratelimit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/synctest"
	"time"

	"github.com/johnkord/sendie/internal/ratelimit"
)

func newTestLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	return ratelimit.New(slog.Default())
}

func TestCheckUnknownPolicy(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t)

	_, err := l.Check(ratelimit.Policy("NOT_A_POLICY"), "1.2.3.4")
	if !errors.Is(err, ratelimit.ErrUnknownPolicy) {
		t.Errorf("Check() error = %v, want ErrUnknownPolicy", err)
	}
}

func TestCheckAllowsUpToMax(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t)

	// SESSION_JOIN allows 30 / minute.
	for i := 0; i < 30; i++ {
		res, err := l.Check(ratelimit.SessionJoin, "conn-1")
		if err != nil {
			t.Fatalf("Check() #%d error: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("Check() #%d denied, want allowed", i)
		}
		if res.Remaining != 30-(i+1) {
			t.Errorf("Check() #%d Remaining = %d, want %d", i, res.Remaining, 30-(i+1))
		}
	}

	res, err := l.Check(ratelimit.SessionJoin, "conn-1")
	if err != nil {
		t.Fatalf("Check() #31 error: %v", err)
	}
	if res.Allowed {
		t.Error("Check() #31 allowed, want denied")
	}
	if res.RetryAfter <= 0 {
		t.Error("Check() denial RetryAfter should be positive")
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		if _, err := l.Check(ratelimit.SessionCreate, "ip-a"); err != nil {
			t.Fatalf("Check(ip-a) #%d error: %v", i, err)
		}
	}

	res, err := l.Check(ratelimit.SessionCreate, "ip-a")
	if err != nil {
		t.Fatalf("Check(ip-a) #11 error: %v", err)
	}
	if res.Allowed {
		t.Error("ip-a should be denied after 10 SESSION_CREATE requests")
	}

	res, err = l.Check(ratelimit.SessionCreate, "ip-b")
	if err != nil {
		t.Fatalf("Check(ip-b) error: %v", err)
	}
	if !res.Allowed {
		t.Error("ip-b should be unaffected by ip-a's quota")
	}
}

// TestCheckSlidesWithTime exercises the sliding window across the fake
// clock driven by synctest: once the window elapses, the oldest request
// ages out and a fresh slot opens exactly on schedule.
func TestCheckSlidesWithTime(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l := newTestLimiter(t)

		for i := 0; i < 10; i++ {
			res, err := l.Check(ratelimit.SessionCreate, "203.0.113.1")
			if err != nil {
				t.Fatalf("Check() #%d error: %v", i, err)
			}
			if !res.Allowed {
				t.Fatalf("Check() #%d denied, want allowed", i)
			}
		}

		res, err := l.Check(ratelimit.SessionCreate, "203.0.113.1")
		if err != nil {
			t.Fatalf("Check() #11 error: %v", err)
		}
		if res.Allowed {
			t.Fatal("Check() #11 allowed, want denied")
		}

		time.Sleep(res.RetryAfter)
		synctest.Wait()

		res, err = l.Check(ratelimit.SessionCreate, "203.0.113.1")
		if err != nil {
			t.Fatalf("Check() after wait error: %v", err)
		}
		if !res.Allowed {
			t.Error("Check() after retry_after elapsed should be allowed")
		}
	})
}

func TestSweepRemovesIdleBuckets(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l := newTestLimiter(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go l.Run(ctx)

		if _, err := l.Check(ratelimit.ICECandidate, "conn-a"); err != nil {
			t.Fatalf("Check() error: %v", err)
		}

		if got := l.Len(); got != 1 {
			t.Fatalf("Len() = %d, want 1", got)
		}

		// ICE_CANDIDATE's window is 1s; idle threshold is 2s. Sleep past
		// both the threshold and a sweep tick.
		time.Sleep(6 * time.Minute)
		synctest.Wait()

		if got := l.Len(); got != 0 {
			t.Errorf("Len() after sweep = %d, want 0", got)
		}
	})
}

func TestSweepKeepsActiveBuckets(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l := newTestLimiter(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go l.Run(ctx)

		if _, err := l.Check(ratelimit.SessionJoin, "conn-b"); err != nil {
			t.Fatalf("Check() error: %v", err)
		}

		// Touch the bucket again just before each sweep tick so it never
		// goes idle for the full 2x window threshold.
		for i := 0; i < 3; i++ {
			time.Sleep(4 * time.Minute)
			synctest.Wait()
			if _, err := l.Check(ratelimit.SessionJoin, "conn-b"); err != nil {
				t.Fatalf("Check() re-touch error: %v", err)
			}
		}

		if got := l.Len(); got != 1 {
			t.Errorf("Len() = %d, want 1 (bucket kept active)", got)
		}
	})
}

func TestClearKeyRemovesBucketsAcrossPolicies(t *testing.T) {
	t.Parallel()

	l := newTestLimiter(t)

	if _, err := l.Check(ratelimit.SessionJoin, "conn-z"); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if _, err := l.Check(ratelimit.SignalingMessage, "conn-z"); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if _, err := l.Check(ratelimit.SessionCreate, "203.0.113.1"); err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	if got := l.Len(); got != 3 {
		t.Fatalf("Len() before ClearKey = %d, want 3", got)
	}

	l.ClearKey("conn-z")

	if got := l.Len(); got != 1 {
		t.Errorf("Len() after ClearKey = %d, want 1 (unrelated key untouched)", got)
	}

	res, err := l.Check(ratelimit.SessionJoin, "conn-z")
	if err != nil {
		t.Fatalf("Check() after ClearKey error: %v", err)
	}
	if res.Remaining != 29 {
		t.Errorf("Remaining after ClearKey = %d, want 29 (fresh bucket)", res.Remaining)
	}
}
