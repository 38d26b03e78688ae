package engine

import (
	"sort"
	"sync"
)

// Class tells the sampling loop how to react to an engine failure.
type Class int

const (
	// ClassRecoverable skips the current cycle and keeps sampling.
	ClassRecoverable Class = iota
	// ClassFatal stops the loop after a final state flush.
	ClassFatal
)

func (c Class) String() string {
	if c == ClassFatal {
		return "fatal"
	}

	return "recoverable"
}

// Library return codes with a known meaning.
const (
	StatusDoStepsInvalidInput        = -1
	StatusDoStepsValueLimits         = -2
	StatusDoStepsDuplicateInput      = -6
	StatusSubscribeWrongDataRate     = -10
	StatusSubscribeSampleRateLimits  = -12
	StatusSubscribeDuplicateGate     = -13
	StatusSubscribeInvalidSampleRate = -14
	StatusSubscribeGateCountExceeded = -15
	StatusSubscribeIntervalMultiple  = -16
	StatusSubscribeMultGasInterval   = -17
	StatusSubscribeHighHeaterOnTime  = -18
	StatusParseSectionExceedsBuffer  = -32
	StatusConfigFail                 = -33
	StatusConfigVersionMismatch      = -34
	StatusConfigFeatureMismatch      = -35
	StatusConfigCRCMismatch          = -36
	StatusConfigEmpty                = -37
	StatusConfigInsufficientWorkBuf  = -38
	StatusConfigInvalidStringSize    = -40
	StatusConfigInsufficientBuffer   = -41
	StatusSetInvalidChannel          = -100
	StatusSetInvalidLength           = -104
)

// Classifier maps library return codes to a Class. Codes absent from the
// table fall back to the default class; positive codes are always recoverable.
type Classifier struct {
	mu       sync.RWMutex
	table    map[int]Class
	fallback Class
}

// DefaultClassifier returns the built-in table: invalid input is recoverable,
// anything that indicates broken configuration or subscription is fatal.
func DefaultClassifier() *Classifier {
	c := &Classifier{
		table:    make(map[int]Class),
		fallback: ClassRecoverable,
	}

	for _, code := range []int{
		StatusDoStepsInvalidInput,
		StatusDoStepsValueLimits,
		StatusDoStepsDuplicateInput,
	} {
		c.table[code] = ClassRecoverable
	}

	for _, code := range []int{
		StatusSubscribeWrongDataRate,
		StatusSubscribeSampleRateLimits,
		StatusSubscribeDuplicateGate,
		StatusSubscribeInvalidSampleRate,
		StatusSubscribeGateCountExceeded,
		StatusSubscribeIntervalMultiple,
		StatusSubscribeMultGasInterval,
		StatusSubscribeHighHeaterOnTime,
		StatusParseSectionExceedsBuffer,
		StatusConfigFail,
		StatusConfigVersionMismatch,
		StatusConfigFeatureMismatch,
		StatusConfigCRCMismatch,
		StatusConfigEmpty,
		StatusConfigInsufficientWorkBuf,
		StatusConfigInvalidStringSize,
		StatusConfigInsufficientBuffer,
		StatusSetInvalidChannel,
		StatusSetInvalidLength,
	} {
		c.table[code] = ClassFatal
	}

	return c
}

// Set overrides the class of a code.
func (c *Classifier) Set(code int, class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table[code] = class
}

// SetFallback sets the class used for unknown negative codes.
func (c *Classifier) SetFallback(class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = class
}

// Classify decides how to treat err. Errors without a library code, such as
// timeouts, are recoverable.
func (c *Classifier) Classify(err error) Class {
	status, ok := StatusOf(err)
	if !ok || status >= 0 {
		return ClassRecoverable
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if class, ok := c.table[status]; ok {
		return class
	}

	return c.fallback
}

// Codes returns the table's codes of the given class, sorted.
func (c *Classifier) Codes(class Class) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes := make([]int, 0, len(c.table))
	for code, cl := range c.table {
		if cl == class {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)

	return codes
}
