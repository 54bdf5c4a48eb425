package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flor3z/noko-bot/internal/arena"
)

const instrumentation = "github.com/flor3z/noko-bot/internal/scheduler"

// Ticker runs one rotation pass.
type Ticker interface {
	Tick(ctx context.Context) arena.TickResult
}

// Notifier is told about ticks that rotated the challenge or reset the week.
type Notifier interface {
	AnnounceTick(ctx context.Context, res arena.TickResult) error
}

// Config controls the rotation job. Meter defaults to the global provider.
type Config struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Meter    metric.MeterProvider
}

// Scheduler runs the arena rotation on a fixed interval.
type Scheduler struct {
	ticker   Ticker
	notifier Notifier
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	ticks     metric.Int64Counter
	rotations metric.Int64Counter
	failures  metric.Int64Counter

	mu      sync.Mutex
	sched   gocron.Scheduler
	running bool
}

// New creates a scheduler. notifier may be nil.
func New(ticker Ticker, notifier Notifier, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider()
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := cfg.Meter.Meter(instrumentation)
	ticks, err := meter.Int64Counter("arena.rotation.ticks", metric.WithDescription("Rotation ticks run"))
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	rotations, err := meter.Int64Counter("arena.rotation.changes", metric.WithDescription("Challenge rotations and weekly resets"))
	if err != nil {
		return nil, fmt.Errorf("creating rotation counter: %w", err)
	}
	failures, err := meter.Int64Counter("arena.rotation.failures", metric.WithDescription("Rotation ticks that failed"))
	if err != nil {
		return nil, fmt.Errorf("creating failure counter: %w", err)
	}

	return &Scheduler{
		ticker:    ticker,
		notifier:  notifier,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		logger:    logger,
		ticks:     ticks,
		rotations: rotations,
		failures:  failures,
	}, nil
}

// Start schedules the rotation job. The first tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.RunOnce(ctx)
		}),
		gocron.WithName("arena-rotation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		sched.Shutdown()
		return fmt.Errorf("scheduling rotation job: %w", err)
	}

	sched.Start()
	s.sched = sched
	s.running = true
	s.logger.Info("rotation scheduler started", "interval", s.interval)
	return nil
}

// Stop shuts the scheduler down and waits for a running tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	err := s.sched.Shutdown()
	s.running = false
	s.logger.Info("rotation scheduler stopped")
	return err
}

// RunOnce runs a single tick, logs it and announces changes.
func (s *Scheduler) RunOnce(ctx context.Context) arena.TickResult {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "arena.tick")
	defer span.End()

	start := s.clock.Now()
	res := s.ticker.Tick(ctx)
	s.ticks.Add(ctx, 1)
	span.SetAttributes(
		attribute.String("tick.id", res.ID),
		attribute.Bool("tick.rotated", res.Rotated),
		attribute.Bool("tick.reset", res.Reset),
	)

	if res.Err != nil {
		s.failures.Add(ctx, 1)
		span.RecordError(res.Err)
		s.logger.Error("rotation tick failed", "tick_id", res.ID, "error", res.Err)
		return res
	}

	attrs := []any{
		"tick_id", res.ID,
		"duration", s.clock.Since(start),
		"rotated", res.Rotated,
		"stalled", res.Stalled,
		"trimmed", res.Trimmed,
		"reset", res.Reset,
	}
	if res.Current != nil {
		attrs = append(attrs, "challenge", res.Current.InstanceID())
	}
	if res.Changed() {
		s.logger.Info("rotation tick completed", attrs...)
	} else {
		s.logger.Debug("rotation tick completed", attrs...)
	}
	if res.Stalled {
		s.logger.Warn("challenge expired but too few participants to rotate", "tick_id", res.ID)
	}

	if res.Rotated {
		s.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "rotation")))
	}
	if res.Reset {
		s.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "reset")))
	}

	if (res.Rotated || res.Reset) && s.notifier != nil {
		if err := s.notifier.AnnounceTick(ctx, res); err != nil {
			s.logger.Error("failed to announce rotation", "tick_id", res.ID, "error", err)
		}
	}

	return res
}
