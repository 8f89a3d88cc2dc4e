package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler re-runs each tracker's refresh on its interval.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	trackers map[string]*Tracker
	entries  map[string]cron.EntryID
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(cron.Recover(cronLogger{log}))),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		trackers: map[string]*Tracker{},
		entries:  map[string]cron.EntryID{},
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("portfolios", len(s.trackers)).Msg("Scheduler started")
}

// Stop cancels running cycles and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// Add registers t with an "@every" job and hooks its manual refreshes to
// restart the timer.
func (s *Scheduler) Add(t *Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trackers[t.ID()]; exists {
		return NewError(ErrCodeInvalidInput, fmt.Sprintf("portfolio %s already scheduled", t.ID()))
	}
	id, err := s.schedule(t)
	if err != nil {
		return err
	}
	s.trackers[t.ID()] = t
	s.entries[t.ID()] = id
	t.setManualHook(func() {
		if err := s.Reset(t.ID()); err != nil {
			s.log.Warn().Err(err).Str("portfolio", t.ID()).Msg("Timer reset failed")
		}
	})
	return nil
}

// Reset restarts the interval of a portfolio from now.
func (s *Scheduler) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		return NewError(ErrCodeNotFound, fmt.Sprintf("portfolio %s is not scheduled", id))
	}
	s.cron.Remove(s.entries[id])
	entry, err := s.schedule(t)
	if err != nil {
		return err
	}
	s.entries[id] = entry
	return nil
}

// Next returns when the portfolio is next refreshed.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

func (s *Scheduler) schedule(t *Tracker) (cron.EntryID, error) {
	spec := fmt.Sprintf("@every %ds", int(t.Config().Interval().Seconds()))
	id, err := s.cron.AddFunc(spec, func() {
		s.log.Debug().Str("job", t.ID()).Msg("Running job")
		if _, err := t.Refresh(s.ctx); err != nil {
			s.log.Error().Err(err).Str("job", t.ID()).Msg("Job failed")
			return
		}
		s.log.Debug().Str("job", t.ID()).Msg("Job completed")
	})
	if err != nil {
		return 0, WrapError(ErrCodeInternal, "schedule refresh", err)
	}
	s.log.Info().Str("schedule", spec).Str("job", t.ID()).Msg("Job registered")
	return id, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
