package claim

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler refreshes every session on a fixed interval.
type Scheduler struct {
	sched  gocron.Scheduler
	cancel context.CancelFunc
}

// StartScheduler runs svc.RefreshAll every interval until Stop is called.
// A refresh still running when the next one is due is not overlapped.
func StartScheduler(svc *Service, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			log.Println("Refreshing claimable balances...")
			svc.RefreshAll(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule refresh job: %w", err)
	}

	sched.Start()
	log.Printf("Balance refresh scheduled every %s", interval)
	return &Scheduler{sched: sched, cancel: cancel}, nil
}

func (s *Scheduler) Stop() error {
	s.cancel()
	return s.sched.Shutdown()
}
