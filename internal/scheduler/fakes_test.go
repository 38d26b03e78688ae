package scheduler

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
	"codeberg.org/mutker/bsec-exporter/internal/state"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeClock fires timers up to maxAuto immediately by advancing time.
// Longer timers never fire and are reported on parked.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	maxAuto time.Duration
	waits   []time.Duration
	parked  chan time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     t0,
		maxAuto: 10 * time.Minute,
		parked:  make(chan time.Duration, 16),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waits = append(c.waits, d)
	t := &fakeTimer{c: make(chan time.Time, 1)}

	if d <= c.maxAuto {
		c.now = c.now.Add(d)
		t.c <- c.now
		return t
	}

	select {
	case c.parked <- d:
	default:
	}

	return t
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeTimer struct {
	c chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }
func (t *fakeTimer) Stop() bool          { return true }

type readCall struct {
	ambient float64
	ctxErr  error
}

// fakeSensor returns errs in order, then succeeds forever.
type fakeSensor struct {
	mu     sync.Mutex
	sample sensor.RawSample
	errs   []error
	calls  []readCall
	onRead func(call int)
}

func newFakeSensor(errs ...error) *fakeSensor {
	return &fakeSensor{
		sample: sensor.RawSample{
			Temperature:   25,
			Humidity:      40,
			Pressure:      1013,
			GasResistance: 50000,
			GasValid:      true,
		},
		errs: errs,
	}
}

func (s *fakeSensor) Read(ctx context.Context, ambient float64, _ sensor.MeasurementRequest) (sensor.RawSample, error) {
	s.mu.Lock()
	n := len(s.calls)
	hook := s.onRead
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, readCall{ambient: ambient, ctxErr: ctx.Err()})
	if n < len(s.errs) && s.errs[n] != nil {
		return sensor.RawSample{}, s.errs[n]
	}

	return s.sample, nil
}

func (*fakeSensor) Close() error { return nil }

func (s *fakeSensor) Calls() []readCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]readCall(nil), s.calls...)
}

type memPersister struct {
	mu      sync.Mutex
	loaded  state.Snapshot
	loadErr error
	saves   []state.Snapshot
	saveErr error
	block   chan struct{}
}

func newMemPersister() *memPersister {
	return &memPersister{loadErr: errors.New().New(state.ErrNotFound)}
}

func (p *memPersister) Load() (state.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded, p.loadErr
}

func (p *memPersister) Save(snap state.Snapshot) error {
	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves = append(p.saves, snap)

	return nil
}

func (p *memPersister) Blobs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.saves))
	for _, s := range p.saves {
		out = append(out, string(s.Blob))
	}
	return out
}

type fakeRecorder struct {
	mu         sync.Mutex
	cycles     int
	failures   []int
	recovered  int
	engineErrs []string
	saves      []error
	coldStarts []bool
}

func (r *fakeRecorder) CycleCompleted(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
}

func (r *fakeRecorder) SensorFailure(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, n)
}

func (r *fakeRecorder) SensorRecovered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovered++
}

func (r *fakeRecorder) EngineError(class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engineErrs = append(r.engineErrs, class)
}

func (r *fakeRecorder) StateSaved(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, err)
}

func (r *fakeRecorder) ColdStart(cold bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coldStarts = append(r.coldStarts, cold)
}
