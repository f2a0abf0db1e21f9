package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Sortie/internal/model"
)

// Service runs the configured sequence once (manual mode) or on a schedule
// (timer mode) until its context ends.
type Service struct {
	sup         *Supervisor
	entries     []Entry
	opts        []SequenceOption
	timer       bool
	schedule    *model.TimerSchedule
	stopTimeout time.Duration

	mx      sync.Mutex
	current *Sequence
	cycles  int
}

// NewService validates the service configuration. The sequence options
// are applied to the sequence of every cycle.
func NewService(ctx context.Context, cfg model.Service, sup *Supervisor, entries []Entry, opts ...SequenceOption) (*Service, error) {
	s := &Service{
		sup:         sup,
		entries:     entries,
		stopTimeout: DefaultStopTimeout,
	}

	if cfg.StopTimeout != "" {
		d, err := model.ParseCueDuration(cfg.StopTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing service.stop_timeout: %w", err)
		}
		s.stopTimeout = d
		opts = append(opts, WithStopTimeout(d))
	}
	if cfg.PollInterval != "" {
		d, err := model.ParseCueDuration(cfg.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing service.poll_interval: %w", err)
		}
		opts = append(opts, WithPollInterval(d))
	}
	s.opts = opts

	switch cfg.Mode {
	case "", model.ServiceModeManual:
	case model.ServiceModeTimer:
		if _, err := jobDefinition(ctx, cfg.Schedule); err != nil {
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		s.timer = true
		s.schedule = cfg.Schedule
	default:
		return nil, fmt.Errorf("unsupported service mode %q", cfg.Mode)
	}
	return s, nil
}

// Do runs the service. In manual mode it returns after one sequence, in
// timer mode it returns once ctx is done. All modules are stopped before
// Do returns.
func (s *Service) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a service", "timer", s.timer)
	defer s.sup.StopAll(s.stopTimeout)

	if !s.timer {
		s.cycle(ctx)
		return nil
	}

	scheduler, err := s.newScheduler(ctx)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		err := scheduler.Shutdown()
		if err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()

	<-ctx.Done()
	s.mx.Lock()
	current := s.current
	s.mx.Unlock()
	if current != nil {
		current.Stop()
	}
	return nil
}

// Cycles returns the number of sequences started so far.
func (s *Service) Cycles() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.cycles
}

func (s *Service) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	seq := NewSequence(s.sup, s.entries, s.opts...)
	s.mx.Lock()
	s.current = seq
	s.cycles++
	n := s.cycles
	s.mx.Unlock()

	slog.InfoContext(ctx, "sequence cycle started", "cycle", n)
	seq.Run(ctx)
	slog.InfoContext(ctx, "sequence cycle finished", "cycle", n)

	s.mx.Lock()
	if s.current == seq {
		s.current = nil
	}
	s.mx.Unlock()
}

func (s *Service) newScheduler(ctx context.Context) (gocron.Scheduler, error) {
	job, err := jobDefinition(ctx, s.schedule)
	if err != nil {
		return nil, err
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = sched.NewJob(
		job,
		gocron.NewTask(func() { s.cycle(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return sched, nil
}

func jobDefinition(ctx context.Context, cfgp *model.TimerSchedule) (gocron.JobDefinition, error) {
	if cfgp == nil {
		return nil, errors.New("service.schedule is nil")
	}
	cfg := *cfgp
	switch {
	case cfg.Cron != "":
		err := model.ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
		return gocron.CronJob(cfg.Cron, false), nil
	case cfg.Duration != "":
		d, err := model.ParseCueDuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		return gocron.DurationJob(d), nil
	default:
		return nil, errors.New("both cron and duration are empty")
	}
}
