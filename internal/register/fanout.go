package register

import (
	"context"
	"fmt"
	"time"
)

// completion is the outcome of one replica call.
type completion[T any] struct {
	replicaID string
	value     T
	err       error
}

// fanOut calls every target concurrently. Calls run on a context detached
// from ctx so they outlive the operation that started them, bounded by
// timeout. The returned channel is buffered for every call, so a call that
// finishes after its operation returned never blocks.
func fanOut[T any](ctx context.Context, targets []target, timeout time.Duration, call func(context.Context, Replica) (T, error)) <-chan completion[T] {
	var (
		results  = make(chan completion[T], len(targets))
		detached = context.WithoutCancel(ctx)
	)

	for _, t := range targets {
		go func(t target) {
			var c = completion[T]{replicaID: t.id}
			defer func() {
				if p := recover(); p != nil {
					c.err = fmt.Errorf("replica %s panicked: %v", t.id, p)
				}
				results <- c
			}()

			callCtx, cancel := context.WithTimeout(detached, timeout)
			defer cancel()

			c.value, c.err = call(callCtx, t.replica)
		}(t)
	}

	return results
}

// awaitQuorum consumes completions until quorum successes are seen. It fails
// as soon as the successes plus the calls still pending can no longer reach
// quorum, or when ctx is done.
func awaitQuorum[T any](ctx context.Context, results <-chan completion[T], calls, quorum int, onSuccess, onFailure func(completion[T])) (int, error) {
	var (
		acks    = 0
		pending = calls
	)

	for acks < quorum {
		if acks+pending < quorum {
			return acks, ErrQuorumUnreachable
		}

		select {
		case <-ctx.Done():
			return acks, fmt.Errorf("%w: %w", ErrQuorumUnreachable, ctx.Err())
		case c := <-results:
			pending--
			if c.err != nil {
				onFailure(c)
				continue
			}
			acks++
			onSuccess(c)
		}
	}

	return acks, nil
}
