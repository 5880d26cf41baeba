package kubeapi

import (
	"testing"
	"time"
)

func TestRetryIteratorPolicyNeverGivesUpImmediately(t *testing.T) {
	it := newRetryIterator(RetryStrategy{Policy: RetryPolicy{Kind: PolicyNever}})
	_, ok := it.next()
	if ok {
		t.Fatal("expected the never-retry policy to refuse the first attempt")
	}
}

func TestRetryIteratorPolicyMaxAttempts(t *testing.T) {
	strategy := RetryStrategy{
		InitialDelay: time.Second,
		Policy:       RetryPolicy{Kind: PolicyMaxAttempts, MaxAttempts: 2},
		Backoff:      Backoff{Kind: BackoffFixed, FixedDelay: 5 * time.Second},
	}
	it := newRetryIterator(strategy)

	a1, ok := it.next()
	if !ok || a1.Attempt != 1 || a1.Delay != time.Second {
		t.Fatalf("attempt 1 = %+v, ok=%v", a1, ok)
	}

	a2, ok := it.next()
	if !ok || a2.Attempt != 2 || a2.Delay != 6*time.Second {
		t.Fatalf("attempt 2 = %+v, ok=%v", a2, ok)
	}

	_, ok = it.next()
	if ok {
		t.Fatal("expected the iterator to be exhausted after MaxAttempts")
	}
}

func TestRetryIteratorPolicyAlwaysNeverExhausts(t *testing.T) {
	strategy := RetryStrategy{Policy: RetryPolicy{Kind: PolicyAlways}}
	it := newRetryIterator(strategy)
	for i := 0; i < 50; i++ {
		if _, ok := it.next(); !ok {
			t.Fatalf("policy-always iterator gave up at iteration %d", i)
		}
	}
}

func TestBackoffExponentialClampsAtMaxDelay(t *testing.T) {
	b := Backoff{Kind: BackoffExponential, MaxDelay: 10 * time.Second, Multiplier: 3}
	got := b.computeNext(5 * time.Second)
	if got != 10*time.Second {
		t.Errorf("computeNext = %v, want clamped 10s", got)
	}
}

func TestBackoffNoneAlwaysZero(t *testing.T) {
	b := Backoff{Kind: BackoffNone}
	if got := b.computeNext(7 * time.Second); got != 0 {
		t.Errorf("computeNext = %v, want 0", got)
	}
}

func TestApplyJitterStaysNonNegativeAndBounded(t *testing.T) {
	d := 10 * time.Second
	for i := 0; i < 200; i++ {
		got := applyJitter(d, 0.5)
		if got < 0 {
			t.Fatalf("jittered delay went negative: %v", got)
		}
		if got > d+d/2 {
			t.Fatalf("jittered delay %v exceeds the +50%% bound of %v", got, d)
		}
	}
}
