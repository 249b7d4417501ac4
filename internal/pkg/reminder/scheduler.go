package reminder

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the reminder job every morning.
const DefaultSchedule = "0 8 * * *"

// Scheduler runs the job on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     *Job
	timeout time.Duration
}

// NewScheduler registers the job under schedule, a standard five-field cron
// expression.
func NewScheduler(job *Job, schedule string) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		job:     job,
		timeout: 10 * time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.job.Run(ctx); err != nil {
		log.Errorf("[Reminder] Run failed: %v", err)
	}
}

func (s *Scheduler) Start() {
	log.Info("[Reminder] Starting scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("[Reminder] Scheduler stopped")
}
