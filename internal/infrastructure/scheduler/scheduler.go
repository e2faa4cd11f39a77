package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func New(log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log.With(zap.String("component", "scheduler")),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers job under a cron spec with seconds, e.g. "0 */5 * * * *"
// or a descriptor such as "@every 30s".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug("Running job", zap.String("job", job.Name()))

		if err := job.Run(); err != nil {
			s.log.Error("Job failed", zap.String("job", job.Name()), zap.Error(err))
			return
		}
		s.log.Debug("Job completed", zap.String("job", job.Name()))
	})
	if err != nil {
		return err
	}

	s.log.Info("Job registered", zap.String("schedule", schedule), zap.String("job", job.Name()))
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info("Running job immediately", zap.String("job", job.Name()))
	return job.Run()
}
