package assessor

import (
	"context"
	"errors"
	"time"

	"github.com/programme-lv/assessor/internal/domain"
)

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Expired   int
	Abandoned int
	Cancelled int
}

// IdleReason is recorded on attempts abandoned for inactivity.
const IdleReason = "no activity"

// Sweep expires attempts whose test window has closed and, when enabled,
// abandons attempts that went idle.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	expired, err := s.machine.ExpireDue(ctx, s.content.Test)
	for _, a := range expired {
		rep.Expired++
		rep.Cancelled += s.inflight.cancel(a.ID, ErrGradingCancelled)
		t, terr := s.content.Test(ctx, a.TestID)
		if terr != nil {
			continue
		}
		res, rerr := s.machine.Result(ctx, t, a)
		if rerr != nil {
			s.logger.Error("failed to score expired attempt", "attempt_id", a.ID, "error", rerr)
		}
		s.archive(ctx, a, res)
	}
	if err != nil {
		return rep, err
	}

	if s.cfg.IdleAbandonAfter <= 0 {
		return rep, nil
	}
	open, err := s.machine.Store().ListInProgress(ctx)
	if err != nil {
		return rep, err
	}
	for _, a := range open {
		if !s.activity.Idle(a.ID, a.StartedAt, s.cfg.IdleAbandonAfter) {
			continue
		}
		if s.inflight.running(a.ID) > 0 {
			continue
		}
		t, err := s.content.Test(ctx, a.TestID)
		if err != nil {
			continue
		}
		got, err := s.machine.Abandon(ctx, t, a.ID, IdleReason)
		var te *domain.TransitionError
		if errors.As(err, &te) {
			continue
		}
		if err != nil {
			return rep, err
		}
		rep.Abandoned++
		s.finishAbandoned(ctx, t, got)
	}
	return rep, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "error", err)
				continue
			}
			if rep.Expired > 0 || rep.Abandoned > 0 {
				s.logger.Info("sweep finished",
					"expired", rep.Expired, "abandoned", rep.Abandoned, "cancelled", rep.Cancelled)
			}
		}
	}
}
