// Package enginetest provides a deterministic, scripted stand-in for the
// fusion library.
package enginetest

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
)

// DefaultIdleHint is how far out the engine schedules itself once the script ends.
const DefaultIdleHint = time.Hour

// Step scripts one processed sample.
type Step struct {
	// Outputs returned by Process. Zero timestamps take the sample's.
	Outputs []engine.Output
	// Hint is the delay until the next requested sample.
	Hint time.Duration
	// Err, when set, is returned by Process instead of the outputs.
	Err error
}

// Engine replays Steps in order. A step is consumed by each Process call.
type Engine struct {
	mu sync.Mutex

	steps       []Step
	processed   int
	due         time.Time
	pendingNext time.Time
	idleHint    time.Duration

	exhausted     chan struct{}
	exhaustedOnce sync.Once

	subscriptions []engine.Subscription
	config        []byte
	samples       []sensor.RawSample
	offsets       []float64
	controls      int

	restored     *engine.State
	StateErr     error
	SetStateErr  error
	ControlErr   error
	ConfigErr    error
	SubscribeErr error
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine that replays steps.
func New(steps ...Step) *Engine {
	e := &Engine{
		steps:     steps,
		idleHint:  DefaultIdleHint,
		exhausted: make(chan struct{}),
	}
	if len(steps) == 0 {
		e.markExhausted()
	}

	return e
}

// Exhausted is closed once every step has been processed.
func (e *Engine) Exhausted() <-chan struct{} {
	return e.exhausted
}

func (e *Engine) markExhausted() {
	e.exhaustedOnce.Do(func() { close(e.exhausted) })
}

func (*Engine) Version() string {
	return "test-1.0"
}

func (e *Engine) SetConfiguration(blob []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ConfigErr != nil {
		return e.ConfigErr
	}
	e.config = append([]byte(nil), blob...)

	return nil
}

func (e *Engine) UpdateSubscription(subs []engine.Subscription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SubscribeErr != nil {
		return e.SubscribeErr
	}
	e.subscriptions = append([]engine.Subscription(nil), subs...)

	return nil
}

func (e *Engine) Control(now time.Time) (engine.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.controls++
	if e.ControlErr != nil {
		err := e.ControlErr
		e.ControlErr = nil
		return engine.Schedule{}, err
	}

	if e.processed >= len(e.steps) {
		return engine.Schedule{Next: now.Add(e.idleHint)}, nil
	}

	if now.Before(e.due) {
		return engine.Schedule{Next: e.due}, nil
	}

	e.pendingNext = now.Add(e.steps[e.processed].Hint)

	return engine.Schedule{
		Trigger: true,
		Next:    e.pendingNext,
		Measurement: sensor.MeasurementRequest{
			HeaterTemperature:       320,
			HeaterDuration:          150 * time.Millisecond,
			RunGas:                  true,
			TemperatureOversampling: 2,
			PressureOversampling:    5,
			HumidityOversampling:    1,
		},
	}, nil
}

func (e *Engine) Process(sample sensor.RawSample, heatOffset float64) ([]engine.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.processed >= len(e.steps) {
		return nil, nil
	}

	step := e.steps[e.processed]
	e.processed++
	e.due = e.pendingNext
	e.samples = append(e.samples, sample)
	e.offsets = append(e.offsets, heatOffset)
	if e.processed == len(e.steps) {
		e.markExhausted()
	}

	if step.Err != nil {
		return nil, step.Err
	}

	outputs := make([]engine.Output, len(step.Outputs))
	for i, out := range step.Outputs {
		if out.Timestamp.IsZero() {
			out.Timestamp = sample.Timestamp
		}
		outputs[i] = out
	}

	return outputs, nil
}

// State returns a blob naming the number of processed steps.
func (e *Engine) State() (engine.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.StateErr != nil {
		return engine.State{}, e.StateErr
	}

	return engine.State{
		Blob:    []byte(fmt.Sprintf("state-%d", e.processed)),
		Version: "test-1.0",
	}, nil
}

func (e *Engine) SetState(state engine.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.SetStateErr != nil {
		return e.SetStateErr
	}
	e.restored = &state

	return nil
}

func (*Engine) Close() error {
	return nil
}

// Processed returns how many steps have been consumed.
func (e *Engine) Processed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed
}

// Controls returns how often Control was called.
func (e *Engine) Controls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controls
}

// Restored returns the state passed to SetState, if any.
func (e *Engine) Restored() (engine.State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restored == nil {
		return engine.State{}, false
	}
	return *e.restored, true
}

// Samples returns the samples fed to Process.
func (e *Engine) Samples() []sensor.RawSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sensor.RawSample(nil), e.samples...)
}

// Offsets returns the heat-source offsets fed to Process.
func (e *Engine) Offsets() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.offsets...)
}

// Subscriptions returns the last subscription update.
func (e *Engine) Subscriptions() []engine.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Subscription(nil), e.subscriptions...)
}

// Configuration returns the blob passed to SetConfiguration.
func (e *Engine) Configuration() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.config...)
}
