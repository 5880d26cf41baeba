package ratelimit

import (
	"testing"
	"time"
)

func TestAfterIdleTicksOnceIdlePasses(t *testing.T) {
	rl := AfterIdle(20 * time.Millisecond)
	defer rl.Stop()

	rl.AskTick()
	select {
	case <-rl.GetChan():
	case <-time.After(time.Second):
		t.Fatal("expected a tick after the idle interval")
	}
}

func TestAfterIdleResetsOnRepeatedAsks(t *testing.T) {
	rl := AfterIdle(50 * time.Millisecond)
	defer rl.Stop()

	deadline := time.After(300 * time.Millisecond)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 10; i++ {
		select {
		case <-ticker.C:
			rl.AskTick()
		case <-deadline:
			t.Fatal("repeated asks should keep postponing the tick")
		case <-rl.GetChan():
			t.Fatal("got a tick before the caller went idle")
		}
	}

	select {
	case <-rl.GetChan():
	case <-time.After(time.Second):
		t.Fatal("expected a tick once the caller stops asking")
	}
}

func TestAfterIdleStopIsSafeAfterDoubleAsk(t *testing.T) {
	rl := AfterIdle(10 * time.Millisecond)
	rl.AskTick()
	rl.AskTick()
	rl.Stop()
}
