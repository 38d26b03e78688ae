// Package scheduler runs the sample, process and publish loop.
//
// The fusion engine decides when it wants the next sample. The loop waits
// for that instant or for shutdown, reads the sensor, feeds the engine,
// publishes the outputs and now and then persists the engine state. Per-cycle
// failures are contained; only a fatal engine error ends the loop early.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/bridge"
	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/journal"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
	"codeberg.org/mutker/bsec-exporter/internal/state"
	"codeberg.org/mutker/bsec-exporter/internal/telemetry"
	"golang.org/x/time/rate"
)

// Publisher is the write side of the metrics bridge.
type Publisher interface {
	Publish(outputs []engine.Output) *bridge.Snapshot
}

type Scheduler struct {
	cfg        Config
	engine     engine.Engine
	sensor     sensor.Sensor
	persister  state.Persister
	publisher  Publisher
	classifier *engine.Classifier
	recorder   telemetry.Recorder
	journal    journal.Journal
	clock      Clock
	log        logger.Logger

	failLog    *rate.Limiter
	suppressed int

	// owned by the loop goroutine
	next     time.Time
	cycle    uint64
	failures int
	ambient  float64
	policy   *state.Policy
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithClassifier(c *engine.Classifier) Option {
	return func(s *Scheduler) { s.classifier = c }
}

func WithRecorder(r telemetry.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithJournal(j journal.Journal) Option {
	return func(s *Scheduler) { s.journal = j }
}

func New(cfg Config, eng engine.Engine, sens sensor.Sensor, persister state.Persister, pub Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		engine:     eng,
		sensor:     sens,
		persister:  persister,
		publisher:  pub,
		classifier: engine.DefaultClassifier(),
		recorder:   telemetry.Noop{},
		journal:    journal.NewNoop(),
		clock:      realClock{},
		log:        logger.Component("scheduler"),
		ambient:    cfg.InitialAmbient,
	}

	for _, opt := range opts {
		opt(s)
	}

	limit := rate.Inf
	if cfg.LogInterval > 0 {
		limit = rate.Every(cfg.LogInterval)
	}
	s.failLog = rate.NewLimiter(limit, 1)

	return s
}

// waitDuration is the time left until next, never negative.
func waitDuration(now, next time.Time) time.Duration {
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Run restores persisted state and loops until ctx is cancelled or the
// engine reports a fatal error. Either way the state is saved once more
// before Run returns. A shutdown returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.restore(ctx)

	start := s.clock.Now()
	s.next = start
	s.policy = state.NewPolicy(s.cfg.State, start)

	s.log.Info().
		Str("engine_version", s.engine.Version()).
		Float64("initial_ambient", s.ambient).
		Float64("heat_offset", s.cfg.HeatOffset).
		Msg("Sampling loop started")

	for {
		if !s.wait(ctx) {
			s.log.Info().Uint64("cycles", s.cycle).Msg("Shutdown requested, stopping sampling loop")
			s.record(ctx, journal.Event{Kind: journal.EventShutdown, Detail: fmt.Sprintf("cycles=%d", s.cycle)})
			s.finalSave(ctx)
			return nil
		}

		if err := s.runCycle(ctx); err != nil {
			s.finalSave(ctx)
			return err
		}
	}
}

// wait blocks until the next sample time. It returns false if ctx ends first.
func (s *Scheduler) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	d := waitDuration(s.clock.Now(), s.next)
	if d == 0 {
		return true
	}

	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

// runCycle performs one control/read/process/publish pass. Only a fatal
// engine error is returned.
func (s *Scheduler) runCycle(ctx context.Context) error {
	now := s.clock.Now()

	// a started cycle runs to completion even if shutdown arrives meanwhile
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ReadTimeout)
	defer cancel()

	sched, err := s.engine.Control(now)
	if err != nil {
		if s.engineError(ctx, "control", err) == engine.ClassFatal {
			return errors.New().Wrap(ErrEngineFatal, err)
		}
		s.next = now.Add(s.cfg.BackoffInitial)
		return nil
	}

	if !sched.Trigger {
		s.next = sched.Next
		return nil
	}

	sample, err := s.sensor.Read(opCtx, s.ambient, sched.Measurement)
	if err != nil {
		s.sensorFailure(ctx, now, err)
		return nil
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.clock.Now()
	}
	s.sensorRecovered(ctx)

	outputs, err := s.engine.Process(sample, s.cfg.HeatOffset)
	s.next = sched.Next
	if err != nil {
		if s.engineError(ctx, "process", err) == engine.ClassFatal {
			return errors.New().Wrap(ErrEngineFatal, err)
		}
		return nil
	}

	s.publisher.Publish(outputs)
	s.cycle++
	s.recorder.CycleCompleted(s.clock.Now())
	s.updateAmbient(sample, outputs)

	s.log.Debug().
		Uint64("cycle", s.cycle).
		Int("outputs", len(outputs)).
		Float64("ambient", s.ambient).
		Time("next", s.next).
		Msg("Cycle completed")

	if done := s.clock.Now(); s.policy.Due(done, s.cycle) {
		s.policy.Mark(done, s.cycle)
		s.save(ctx)
	}

	return nil
}

func (s *Scheduler) updateAmbient(sample sensor.RawSample, outputs []engine.Output) {
	for _, o := range outputs {
		if o.Kind == engine.SensorHeatCompensatedTemperature {
			s.ambient = o.Value
			return
		}
	}
	s.ambient = sample.Temperature - s.cfg.HeatOffset
}

func (s *Scheduler) sensorFailure(ctx context.Context, now time.Time, err error) {
	s.failures++
	delay := s.cfg.backoff(s.failures)
	s.next = now.Add(delay)
	s.recorder.SensorFailure(s.failures)

	if s.failures == 1 {
		s.record(ctx, journal.Event{
			Kind:      journal.EventSensorFailing,
			ErrorCode: codeOf(err),
			Detail:    err.Error(),
		})
	}

	if !s.failLog.Allow() {
		s.suppressed++
		return
	}

	ev := s.log.Warn()
	if s.failures >= s.cfg.FailureThreshold {
		ev = s.log.Error()
	}
	ev.Err(err).
		Int("consecutive", s.failures).
		Int("suppressed", s.suppressed).
		Dur("retry_in", delay).
		Msg("Sensor read failed")
	s.suppressed = 0
}

func (s *Scheduler) sensorRecovered(ctx context.Context) {
	if s.failures == 0 {
		return
	}

	s.log.Info().Int("failures", s.failures).Msg("Sensor read recovered")
	s.record(ctx, journal.Event{
		Kind:   journal.EventSensorRecover,
		Detail: fmt.Sprintf("failures=%d", s.failures),
	})
	s.recorder.SensorRecovered()
	s.failures = 0
	s.suppressed = 0
}

func (s *Scheduler) engineError(ctx context.Context, op string, err error) engine.Class {
	class := s.classifier.Classify(err)
	s.recorder.EngineError(class.String())
	s.record(ctx, journal.Event{
		Kind:      journal.EventEngineError,
		ErrorCode: codeOf(err),
		Detail:    fmt.Sprintf("%s (%s): %v", op, class, err),
	})

	ev := s.log.Warn()
	if class == engine.ClassFatal {
		ev = s.log.Error()
	}
	ev.Err(err).Str("operation", op).Str("class", class.String()).Msg("Engine error")

	return class
}

func codeOf(err error) string {
	if code, ok := errors.CodeOf(err); ok {
		return string(code)
	}
	return ""
}

// record writes to the journal; a failing journal never affects sampling.
func (s *Scheduler) record(ctx context.Context, ev journal.Event) {
	if ev.Time.IsZero() {
		ev.Time = s.clock.Now()
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Debug().Err(err).Str("event", string(ev.Kind)).Msg("Journal write failed")
	}
}
