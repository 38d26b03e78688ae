package scheduler

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/journal"
	"codeberg.org/mutker/bsec-exporter/internal/state"
)

// restore loads the persisted engine state. Every failure ends in a cold
// start; none of them stop the exporter.
func (s *Scheduler) restore(ctx context.Context) {
	snap, err := s.persister.Load()
	if err != nil {
		s.coldStart(ctx, err)
		return
	}

	if v := s.engine.Version(); snap.EngineVersion != "" && snap.EngineVersion != v {
		s.log.Warn().
			Str("saved_version", snap.EngineVersion).
			Str("engine_version", v).
			Msg("Persisted state was written by a different engine version")
	}

	if err := s.engine.SetState(engine.State{Blob: snap.Blob, Version: snap.EngineVersion}); err != nil {
		s.coldStart(ctx, err)
		return
	}

	s.recorder.ColdStart(false)
	s.record(ctx, journal.Event{
		Kind:   journal.EventStateRestored,
		Detail: fmt.Sprintf("bytes=%d saved_at=%s", len(snap.Blob), snap.SavedAt.Format(time.RFC3339)),
	})
	s.log.Info().
		Int("bytes", len(snap.Blob)).
		Time("saved_at", snap.SavedAt).
		Msg("Engine state restored")
}

func (s *Scheduler) coldStart(ctx context.Context, err error) {
	s.recorder.ColdStart(true)
	s.record(ctx, journal.Event{
		Kind:      journal.EventColdStart,
		ErrorCode: codeOf(err),
		Detail:    err.Error(),
	})

	ev := s.log.Warn()
	if errors.HasCode(err, state.ErrNotFound) {
		ev = s.log.Info()
	}
	ev.Err(err).Msg("Starting without prior engine state, accuracy will be degraded until recalibrated")
}

// save exports the engine state and hands it to the persister. Failures
// are reported and otherwise ignored.
func (s *Scheduler) save(ctx context.Context) error {
	st, err := s.engine.State()
	if err == nil {
		err = s.persister.Save(state.Snapshot{
			Blob:          st.Blob,
			EngineVersion: st.Version,
			SavedAt:       s.clock.Now(),
		})
	}

	s.recorder.StateSaved(err)

	if err != nil {
		s.record(ctx, journal.Event{Kind: journal.EventSaveFailed, ErrorCode: codeOf(err), Detail: err.Error()})
		s.log.Warn().Err(err).Msg("Failed to save engine state")
		return err
	}

	s.record(ctx, journal.Event{Kind: journal.EventStateSaved, Detail: fmt.Sprintf("bytes=%d", len(st.Blob))})
	s.log.Debug().Int("bytes", len(st.Blob)).Msg("Engine state saved")

	return nil
}

// finalSave performs the last save before exit, bounded by the shutdown
// timeout. On timeout the save is abandoned and the loop exits regardless.
func (s *Scheduler) finalSave(ctx context.Context) {
	done := make(chan error, 1)
	go func() {
		done <- s.save(ctx)
	}()

	t := time.NewTimer(s.cfg.State.ShutdownTimeout)
	defer t.Stop()

	select {
	case err := <-done:
		if err != nil {
			s.log.ErrorWithCode(errors.New().Wrap(ErrFinalSave, err)).Msg("Final state save failed")
			return
		}
		s.log.Info().Msg("Final engine state saved")
	case <-t.C:
		s.log.Error().
			Dur("timeout", s.cfg.State.ShutdownTimeout).
			Msg("Final state save timed out")
	}
}
