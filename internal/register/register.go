package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"binas/internal/keymutex"
)

// ErrQuorumUnreachable is returned when fewer than a quorum of replicas
// answer an operation.
var ErrQuorumUnreachable = errors.New("quorum unreachable")

// Replica is the balance half of a station endpoint.
type Replica interface {
	GetBalance(ctx context.Context, user string) (BalanceView, error)
	SetBalance(ctx context.Context, user string, view BalanceView) error
}

// Locator turns a replica id into a callable replica.
type Locator interface {
	Locate(ctx context.Context, replicaID string) (Replica, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, replicaID string) (Replica, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context, replicaID string) (Replica, error) {
	return f(ctx, replicaID)
}

// Register reads and writes balances on a quorum of replicas.
type Register struct {
	replicas *ReplicaSet
	locator  Locator
	locks    *keymutex.KeyedMutex
	options  options
}

// New creates a register over the given replica set.
func New(replicas *ReplicaSet, locator Locator, opts ...Option) *Register {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Register{
		replicas: replicas,
		locator:  locator,
		locks:    keymutex.New(),
		options:  options,
	}
}

// Replicas returns the replica set the register operates on.
func (r *Register) Replicas() *ReplicaSet {
	return r.replicas
}

// target is a resolved replica.
type target struct {
	id      string
	replica Replica
}

// readResult carries what a quorum read learned, for reuse by a write.
type readResult struct {
	view    BalanceView
	targets []target
	quorum  int
	answers map[string]BalanceView
}

// Read returns the balance with the highest tag among a quorum of replicas.
func (r *Register) Read(ctx context.Context, user string) (BalanceView, error) {
	defer r.lock(user)()

	ctx = ensureRequestID(ctx)
	res, err := r.read(ctx, user)
	if err != nil {
		return BalanceView{}, err
	}
	if r.options.readRepair {
		r.repair(ctx, user, res)
	}
	return res.view, nil
}

// Write adds delta to the user's balance and returns the view that a quorum
// of replicas acknowledged.
func (r *Register) Write(ctx context.Context, user string, delta int) (BalanceView, error) {
	defer r.lock(user)()

	return r.update(ensureRequestID(ctx), user, func(current BalanceView) int {
		return current.Value + delta
	})
}

// Store replaces the user's balance with value.
func (r *Register) Store(ctx context.Context, user string, value int) (BalanceView, error) {
	defer r.lock(user)()

	return r.update(ensureRequestID(ctx), user, func(BalanceView) int {
		return value
	})
}

func (r *Register) lock(user string) (unlock func()) {
	if r.options.globalLock {
		return r.locks.Lock("")
	}
	return r.locks.Lock(user)
}

func (r *Register) read(ctx context.Context, user string) (readResult, error) {
	var (
		start           = time.Now()
		quorum, targets = r.resolve(ctx)
		res             = readResult{
			targets: targets,
			quorum:  quorum,
			answers: make(map[string]BalanceView, len(targets)),
		}
	)

	if len(targets) < quorum {
		return res, r.unreachable(ctx, "read", user, len(targets), quorum)
	}

	results := fanOut(ctx, targets, r.options.replicaTimeout, func(ctx context.Context, replica Replica) (BalanceView, error) {
		return replica.GetBalance(ctx, user)
	})

	acks, err := awaitQuorum(ctx, results, len(targets), quorum,
		func(c completion[BalanceView]) {
			res.view = res.view.Merge(c.value)
			res.answers[c.replicaID] = c.value
		},
		logFailure[BalanceView](r.options.logger, "read", user),
	)
	if err != nil {
		return res, r.failed(ctx, "read", user, acks, quorum, err)
	}

	r.options.logger.Debug("quorum read",
		"user", user,
		"request_id", RequestID(ctx),
		"view", res.view.String(),
		"acks", acks,
		"replicas", len(targets),
		"elapsed", time.Since(start))
	return res, nil
}

func (r *Register) update(ctx context.Context, user string, next func(BalanceView) int) (BalanceView, error) {
	current, err := r.read(ctx, user)
	if err != nil {
		return BalanceView{}, err
	}

	var view = BalanceView{Tag: current.view.Tag + 1, Value: next(current.view)}

	results := fanOut(ctx, current.targets, r.options.replicaTimeout, func(ctx context.Context, replica Replica) (struct{}, error) {
		return struct{}{}, replica.SetBalance(ctx, user, view)
	})

	acks, err := awaitQuorum(ctx, results, len(current.targets), current.quorum,
		func(completion[struct{}]) {},
		logFailure[struct{}](r.options.logger, "write", user),
	)
	if err != nil {
		return BalanceView{}, r.failed(ctx, "write", user, acks, current.quorum, err)
	}

	r.options.logger.Debug("quorum write",
		"user", user,
		"request_id", RequestID(ctx),
		"from", current.view.String(),
		"to", view.String(),
		"acks", acks,
		"replicas", len(current.targets))
	return view, nil
}

// resolve locates every configured replica concurrently and returns the
// quorum size together with the replicas that could be located.
func (r *Register) resolve(ctx context.Context) (int, []target) {
	var (
		ids, quorum = r.replicas.snapshot()
		located     = make([]*target, len(ids))
		wg          sync.WaitGroup
	)

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()

			replica, err := r.locator.Locate(ctx, id)
			if err != nil {
				r.options.logger.Debug("skipping unreachable replica",
					"replica", id,
					"request_id", RequestID(ctx),
					"error", err)
				return
			}
			located[i] = &target{id: id, replica: replica}
		}(i, id)
	}
	wg.Wait()

	targets := make([]target, 0, len(ids))
	for _, t := range located {
		if t != nil {
			targets = append(targets, *t)
		}
	}
	return quorum, targets
}

func logFailure[T any](logger *slog.Logger, op, user string) func(completion[T]) {
	return func(c completion[T]) {
		logger.Debug("replica call failed",
			"op", op,
			"user", user,
			"replica", c.replicaID,
			"error", c.err)
	}
}

func (r *Register) unreachable(ctx context.Context, op, user string, reachable, quorum int) error {
	r.options.logger.Warn("not enough replicas reachable",
		"op", op,
		"user", user,
		"request_id", RequestID(ctx),
		"reachable", reachable,
		"quorum", quorum)
	return fmt.Errorf("%w: %s %s: %d of %d replicas reachable", ErrQuorumUnreachable, op, user, reachable, quorum)
}

func (r *Register) failed(ctx context.Context, op, user string, acks, quorum int, err error) error {
	r.options.logger.Warn("quorum not met",
		"op", op,
		"user", user,
		"request_id", RequestID(ctx),
		"acks", acks,
		"quorum", quorum,
		"error", err)
	return fmt.Errorf("%s %s: acks=%d required=%d: %w", op, user, acks, quorum, err)
}
