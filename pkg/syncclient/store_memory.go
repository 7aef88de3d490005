package syncclient

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrOperationNotFound is returned by stores when the id is unknown.
var ErrOperationNotFound = errors.New("operation not found")

// MemoryStore keeps the queue in process memory. Suited to tests and to
// embedders that accept losing queued operations on restart.
type MemoryStore struct {
	mu  sync.Mutex
	ops map[string]*OfflineOperation
	seq map[string]int
	n   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ops: make(map[string]*OfflineOperation),
		seq: make(map[string]int),
	}
}

func (s *MemoryStore) Save(op *OfflineOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *op
	s.ops[op.ID] = &cp
	if _, ok := s.seq[op.ID]; !ok {
		s.seq[op.ID] = s.n
		s.n++
	}
	return nil
}

func (s *MemoryStore) Get(id string) (*OfflineOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryStore) ListByStatus(statuses ...OperationStatus) ([]*OfflineOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[OperationStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []*OfflineOperation
	for _, op := range s.ops {
		if wanted[op.Status] {
			cp := *op
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) Update(op *OfflineOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[op.ID]; !ok {
		return ErrOperationNotFound
	}
	cp := *op
	cp.UpdatedAt = time.Now()
	s.ops[op.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ops, id)
	return nil
}

func (s *MemoryStore) Counts() (QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts QueueCounts
	for _, op := range s.ops {
		switch op.Status {
		case StatusPending, StatusSyncing:
			counts.Pending++
		case StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
