package journal

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Record(ev Event) error {
	return m.Called(ev).Error(0)
}

func (m *mockRepository) Close() error {
	return m.Called().Error(0)
}

func TestServiceStampsRunID(t *testing.T) {
	repo := new(mockRepository)
	now := time.Unix(1700000000, 0)

	repo.On("Record", mock.MatchedBy(func(ev Event) bool {
		return ev.RunID == "run-1" && ev.Kind == EventStartup
	})).Return(nil).Once()
	repo.On("Record", mock.MatchedBy(func(ev Event) bool {
		return ev.RunID == "explicit"
	})).Return(nil).Once()

	s := newService(repo, "run-1")
	require.NoError(t, s.Record(context.Background(), Event{Time: now, Kind: EventStartup}))
	require.NoError(t, s.Record(context.Background(), Event{Time: now, Kind: EventShutdown, RunID: "explicit"}))

	repo.AssertExpectations(t)
}

func TestServiceRejectsIncompleteEvent(t *testing.T) {
	repo := new(mockRepository)
	s := newService(repo, "run-1")

	err := s.Record(context.Background(), Event{Kind: EventStartup})
	assert.True(t, errors.HasCode(err, ErrInvalidEvent))

	err = s.Record(context.Background(), Event{Time: time.Now()})
	assert.True(t, errors.HasCode(err, ErrInvalidEvent))

	repo.AssertNotCalled(t, "Record", mock.Anything)
}

func TestServiceCancelledContext(t *testing.T) {
	repo := new(mockRepository)
	s := newService(repo, "run-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Record(ctx, Event{Time: time.Now(), Kind: EventStartup})
	assert.True(t, errors.HasCode(err, ErrOperationTimeout))
	repo.AssertNotCalled(t, "Record", mock.Anything)
}

func TestServiceWrapsRepositoryErrors(t *testing.T) {
	repo := new(mockRepository)
	repo.On("Record", mock.Anything).Return(stderrors.New("disk I/O error"))
	repo.On("Close").Return(stderrors.New("busy"))

	s := newService(repo, "run-1")

	err := s.Record(context.Background(), Event{Time: time.Now(), Kind: EventEngineError})
	assert.True(t, errors.HasCode(err, ErrRecordFailed))

	err = s.Close()
	assert.True(t, errors.HasCode(err, ErrServiceShutdown))
}

func TestNewServiceDisabledIsNoop(t *testing.T) {
	j, err := NewService(DefaultConfig(), "run-1")
	require.NoError(t, err)
	assert.IsType(t, noopJournal{}, j)
	assert.NoError(t, j.Record(context.Background(), Event{}))
	assert.NoError(t, j.Close())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidDBPath))

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate())
}
