package register

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidReplicaCount is returned when a replica set would have no members.
var ErrInvalidReplicaCount = errors.New("replica count must be at least 1")

// QuorumSize returns the majority size for n replicas.
func QuorumSize(n int) int {
	return n/2 + 1
}

// ReplicaSet names the replicas holding a copy of every balance. Replica ids
// are the template followed by 1..size, e.g. "A46_Station1".
type ReplicaSet struct {
	mu       sync.RWMutex
	template string
	size     int
	quorum   int
}

// NewReplicaSet creates a replica set of the given size.
func NewReplicaSet(template string, size int) (*ReplicaSet, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidReplicaCount, size)
	}
	return &ReplicaSet{
		template: template,
		size:     size,
		quorum:   QuorumSize(size),
	}, nil
}

// Size returns the number of replicas.
func (s *ReplicaSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Quorum returns the current majority size.
func (s *ReplicaSet) Quorum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quorum
}

// Template returns the replica naming template.
func (s *ReplicaSet) Template() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// IDs returns the replica ids in order.
func (s *ReplicaSet) IDs() []string {
	ids, _ := s.snapshot()
	return ids
}

// SetSize changes the number of replicas and recomputes the quorum.
func (s *ReplicaSet) SetSize(size int) error {
	if size < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidReplicaCount, size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	s.quorum = QuorumSize(size)
	return nil
}

// SetTemplate changes the replica naming template.
func (s *ReplicaSet) SetTemplate(template string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = template
}

// snapshot returns ids and quorum as one consistent pair.
func (s *ReplicaSet) snapshot() ([]string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, s.size)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", s.template, i+1)
	}
	return ids, s.quorum
}
