package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler pushes the daily usage report to the administrator.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	reportFunc func(ctx context.Context) error
}

func New(reportFunc func(ctx context.Context) error) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		ctx:        ctx,
		cancel:     cancel,
		reportFunc: reportFunc,
	}
}

// Start schedules the daily report at 21:00 UTC.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("0 21 * * *", func() {
		if err := s.reportFunc(s.ctx); err != nil {
			log.Printf("daily report failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("scheduler started, daily report at 21:00 UTC")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
}
