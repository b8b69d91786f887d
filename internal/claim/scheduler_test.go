package claim

import (
	"testing"
	"time"
)

func TestSchedulerRefreshesSessions(t *testing.T) {
	f := newFixture(t, staticFeed{events: eightEvents()}, true)

	sched, err := StartScheduler(f.service, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("StartScheduler failed: %v", err)
	}
	defer sched.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for {
		balance, _ := f.service.Balance("alice")
		if balance.ClaimableUnits == 8 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled refresh never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	f := newFixture(t, staticFeed{}, true)
	if _, err := StartScheduler(f.service, 0); err == nil {
		t.Error("expected a zero interval to be rejected")
	}
}
