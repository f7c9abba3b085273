package register

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errReplicaDown = errors.New("replica down")

// fakeReplica is an in-memory replica whose failure mode can be switched.
type fakeReplica struct {
	mu     sync.Mutex
	views  map[string]BalanceView
	err    error
	setErr error
	block  bool
	delay  time.Duration
	gets   int
	sets   int
	onSet  func()
	lastID string
}

func newFakeReplica() *fakeReplica {
	return &fakeReplica{views: make(map[string]BalanceView)}
}

func (f *fakeReplica) GetBalance(ctx context.Context, user string) (BalanceView, error) {
	if err := f.wait(ctx); err != nil {
		return BalanceView{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.lastID = RequestID(ctx)
	return f.views[user], nil
}

func (f *fakeReplica) SetBalance(ctx context.Context, user string, view BalanceView) error {
	f.mu.Lock()
	hook := f.onSet
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	if err := f.wait(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	if view.Tag > f.views[user].Tag {
		f.views[user] = view
	}
	return nil
}

func (f *fakeReplica) wait(ctx context.Context) error {
	f.mu.Lock()
	var (
		err   = f.err
		block = f.block
		delay = f.delay
	)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeReplica) set(user string, view BalanceView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[user] = view
}

func (f *fakeReplica) view(user string) BalanceView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.views[user]
}

func (f *fakeReplica) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// failWrites makes SetBalance fail while GetBalance keeps answering.
func (f *fakeReplica) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr = err
}

func (f *fakeReplica) hang() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = true
}

func (f *fakeReplica) counts() (gets, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets
}

// fakeCluster locates fake replicas by id; ids in missing cannot be located.
type fakeCluster struct {
	mu       sync.Mutex
	replicas map[string]*fakeReplica
	missing  map[string]bool
}

func newFakeCluster(template string, n int) *fakeCluster {
	c := &fakeCluster{
		replicas: make(map[string]*fakeReplica),
		missing:  make(map[string]bool),
	}
	for i := 1; i <= n; i++ {
		c.replicas[fmt.Sprintf("%s%d", template, i)] = newFakeReplica()
	}
	return c
}

func (c *fakeCluster) Locate(_ context.Context, id string) (Replica, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.missing[id] {
		return nil, fmt.Errorf("locate %s: %w", id, errReplicaDown)
	}
	replica, ok := c.replicas[id]
	if !ok {
		return nil, fmt.Errorf("locate %s: unknown replica", id)
	}
	return replica, nil
}

func (c *fakeCluster) hide(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing[id] = true
}

func (c *fakeCluster) show(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.missing, id)
}

func (c *fakeCluster) seed(user string, view BalanceView) {
	for _, r := range c.replicas {
		r.set(user, view)
	}
}
