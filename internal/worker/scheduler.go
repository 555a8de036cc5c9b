package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/simplyinspect/permwatch/internal/config"
	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/services"
)

// jobTimeout bounds a single scheduled run so a hung SharePoint call
// cannot block the next one forever.
const jobTimeout = 30 * time.Minute

// Scheduler runs the periodic background jobs: the detection sweep
// over all active baselines, notification queue processing, and daily
// and weekly digest builds.
type Scheduler struct {
	detection  *services.DetectionService
	dispatcher notification.Service
	cfg        config.Config
	logger     *logger.Logger
	cron       *cron.Cron
}

// NewScheduler creates a new background job scheduler
func NewScheduler(
	detection *services.DetectionService,
	dispatcher notification.Service,
	cfg config.Config,
	log *logger.Logger,
) *Scheduler {
	cl := cronLogger{log}
	return &Scheduler{
		detection:  detection,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log,
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
	}
}

// Start registers the configured jobs and starts the cron loop. It
// returns immediately; jobs run on the cron goroutine.
func (s *Scheduler) Start() error {
	if s.cfg.Detection.Enabled && s.cfg.Detection.SweepSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.Detection.SweepSpec, s.runSweep); err != nil {
			return err
		}
		s.logger.With("spec", s.cfg.Detection.SweepSpec).Info("Detection sweep scheduled")
	}

	if s.cfg.Notification.ProcessSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.Notification.ProcessSpec, s.runQueue); err != nil {
			return err
		}
		s.logger.With("spec", s.cfg.Notification.ProcessSpec).Info("Queue processing scheduled")
	}

	if s.cfg.Detection.DailySpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.Detection.DailySpec, func() {
			s.runDigests(notification.FrequencyDaily)
		}); err != nil {
			return err
		}
	}
	if s.cfg.Detection.WeeklySpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.Detection.WeeklySpec, func() {
			s.runDigests(notification.FrequencyWeekly)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.detection.DetectAll(ctx)
	if err != nil {
		s.logger.ErrorWithErr(err, "Detection sweep failed")
		return
	}

	changed, errored := 0, 0
	for _, site := range report.Sites {
		switch site.Status {
		case services.RunChangesDetected:
			changed++
		case services.RunError:
			errored++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"sites":   len(report.Sites),
		"changed": changed,
		"errors":  errored,
	}).Info("Detection sweep complete")
}

func (s *Scheduler) runQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	sent, failed, err := s.dispatcher.ProcessQueue(ctx)
	if err != nil {
		s.logger.ErrorWithErr(err, "Queue processing failed")
		return
	}
	if sent > 0 || failed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"sent":   sent,
			"failed": failed,
		}).Info("Notification queue processed")
	}
}

func (s *Scheduler) runDigests(freq notification.Frequency) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	queued, err := s.dispatcher.BuildDigests(ctx, freq)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"frequency": string(freq),
		}).ErrorWithErr(err, "Digest build failed")
		return
	}
	if queued > 0 {
		s.logger.WithFields(map[string]interface{}{
			"frequency": string(freq),
			"queued":    queued,
		}).Info("Digests queued")
	}
}

// cronLogger adapts our logger to the cron library's interface
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debugf("%s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.ErrorWithErr(err, msg)
}
