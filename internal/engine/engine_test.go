package engine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputKind(t *testing.T) {
	for _, kind := range AllOutputs() {
		got, err := ParseOutputKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	got, err := ParseOutputKind(" IAQ ")
	require.NoError(t, err)
	assert.Equal(t, Iaq, got)

	_, err = ParseOutputKind("stablization_status")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrUnknownOutput))
}

func TestAllOutputsOrdered(t *testing.T) {
	kinds := AllOutputs()
	require.Len(t, kinds, 14)
	assert.Equal(t, Iaq, kinds[0])
	assert.Equal(t, GasPercentage, kinds[len(kinds)-1])
}

func TestParseSampleRate(t *testing.T) {
	tests := map[string]SampleRate{
		"disabled":   RateDisabled,
		"ulp":        RateULP,
		"LP":         RateLP,
		"continuous": RateContinuous,
	}
	for in, want := range tests {
		got, err := ParseSampleRate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if want != RateDisabled {
			assert.Positive(t, got.Interval())
		}
	}

	_, err := ParseSampleRate("fast")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrUnknownSampleRate))
}

func TestActiveSkipsDisabled(t *testing.T) {
	subs := []Subscription{
		{Output: RawGas, Rate: RateLP},
		{Output: Iaq, Rate: RateLP},
		{Output: Co2Equivalent, Rate: RateDisabled},
	}
	assert.Equal(t, []OutputKind{Iaq, RawGas}, Active(subs))
	assert.Empty(t, Active(nil))
}

func TestDefaultSubscriptions(t *testing.T) {
	subs := DefaultSubscriptions()
	assert.Len(t, subs, 11)
	for _, s := range subs {
		assert.Equal(t, RateLP, s.Rate)
		assert.NotEqual(t, Iaq, s.Output)
	}
}

func TestClassifier(t *testing.T) {
	c := DefaultClassifier()
	f := errors.New()

	wrap := func(status int) error {
		return f.Wrap(ErrProcess, &StatusError{Op: "bsec_do_steps", Status: status})
	}

	assert.Equal(t, ClassRecoverable, c.Classify(wrap(StatusDoStepsInvalidInput)))
	assert.Equal(t, ClassFatal, c.Classify(wrap(StatusConfigCRCMismatch)))
	assert.Equal(t, ClassRecoverable, c.Classify(wrap(100)), "warnings never stop the loop")
	assert.Equal(t, ClassRecoverable, c.Classify(wrap(-77)), "unknown codes use the fallback")
	assert.Equal(t, ClassRecoverable, c.Classify(os.ErrDeadlineExceeded))

	c.SetFallback(ClassFatal)
	assert.Equal(t, ClassFatal, c.Classify(wrap(-77)))

	c.Set(StatusConfigCRCMismatch, ClassRecoverable)
	assert.Equal(t, ClassRecoverable, c.Classify(wrap(StatusConfigCRCMismatch)))
	assert.NotContains(t, c.Codes(ClassFatal), StatusConfigCRCMismatch)
	assert.Contains(t, c.Codes(ClassRecoverable), StatusConfigCRCMismatch)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Op: "bsec_do_steps", Status: -2}
	assert.Equal(t, "bsec_do_steps: library error -2", err.Error())
	assert.False(t, err.IsWarning())

	status, ok := StatusOf(errors.New().Wrap(ErrProcess, err))
	assert.True(t, ok)
	assert.Equal(t, -2, status)

	_, ok = StatusOf(os.ErrNotExist)
	assert.False(t, ok)
}

func TestStripConfigPrefix(t *testing.T) {
	blob := []byte{1, 2, 3, 4, 5}
	raw := make([]byte, 4, 4+len(blob))
	binary.LittleEndian.PutUint32(raw, uint32(len(blob)))
	raw = append(raw, blob...)

	got, err := StripConfigPrefix(raw)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	_, err = StripConfigPrefix([]byte{1, 2})
	assert.True(t, errors.HasCode(err, ErrInvalidConfigBlob))

	_, err = StripConfigPrefix(append(raw, 0xFF))
	assert.True(t, errors.HasCode(err, ErrInvalidConfigBlob))
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsec.conf")
	require.NoError(t, os.WriteFile(path, []byte{2, 0, 0, 0, 0xAA, 0xBB}, 0o600))

	got, err := ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, got)

	_, err = ReadConfigFile(filepath.Join(t.TempDir(), "missing.conf"))
	assert.True(t, errors.HasCode(err, ErrInvalidConfigBlob))
}

func TestSingleHandle(t *testing.T) {
	require.NoError(t, acquire())
	err := acquire()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrAlreadyInUse))

	release()
	require.NoError(t, acquire())
	release()
}
