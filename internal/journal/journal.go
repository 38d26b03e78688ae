package journal

import (
	"context"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
)

type service struct {
	repo  Repository
	runID string
}

type noopJournal struct{}

// NewService returns the SQLite-backed journal, or a no-op one when the
// journal is disabled. runID is stamped on events that carry none.
func NewService(cfg Config, runID string) (Journal, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Journal disabled, using no-op journal")
		return noopJournal{}, nil
	}

	repo, err := NewRepository(cfg, logger.Component("journal"))
	if err != nil {
		return nil, err
	}

	return newService(repo, runID), nil
}

func newService(repo Repository, runID string) *service {
	return &service{repo: repo, runID: runID}
}

func (s *service) Record(ctx context.Context, ev Event) error {
	errFactory := errors.New()

	if ev.Kind == "" || ev.Time.IsZero() {
		return errFactory.WithData(ErrInvalidEvent, ev)
	}
	if ev.RunID == "" {
		ev.RunID = s.runID
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(ev); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (noopJournal) Record(context.Context, Event) error { return nil }
func (noopJournal) Close() error                        { return nil }

// NewNoop returns a journal that drops every event.
func NewNoop() Journal {
	return noopJournal{}
}
