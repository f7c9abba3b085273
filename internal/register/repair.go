package register

import (
	"context"
)

// repair pushes the winning view to replicas that answered with an older tag.
// It is fire-and-forget: failures are logged, never retried, and the caller
// does not wait.
func (r *Register) repair(ctx context.Context, user string, res readResult) {
	var stale []target
	for _, t := range res.targets {
		if view, ok := res.answers[t.id]; ok && view.Tag < res.view.Tag {
			stale = append(stale, t)
		}
	}
	if len(stale) == 0 {
		return
	}

	var (
		winner    = res.view
		requestID = RequestID(ctx)
		logger    = r.options.logger
	)

	go func() {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("read repair panic", "user", user, "error", err)
			}
		}()

		repairCtx, cancel := context.WithTimeout(WithRequestID(context.Background(), requestID), r.options.replicaTimeout)
		defer cancel()

		var repaired, failed int
		for _, t := range stale {
			if err := t.replica.SetBalance(repairCtx, user, winner); err != nil {
				logger.Debug("read repair failed", "user", user, "replica", t.id, "error", err)
				failed++
				continue
			}
			repaired++
		}

		logger.Info("read repair completed",
			"user", user,
			"request_id", requestID,
			"view", winner.String(),
			"repaired", repaired,
			"failed", failed)
	}()
}
