package nodes

import (
	"context"
	"sort"
	"sync"
)

// Store is the node store the sourcing engine writes to. Upsert of an id
// the store has not seen creates the node.
type Store interface {
	Get(ctx context.Context, id string) (*Node, bool, error)
	Upsert(ctx context.Context, n *Node) (Action, error)
	Delete(ctx context.Context, id string) (bool, error)
	// IDs lists the ids of every node of a local type, in id order. Local
	// type names carry the type prefix, so engines with different prefixes
	// can share a store.
	IDs(ctx context.Context, typeName string) ([]string, error)
}

// MemoryStore keeps nodes in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: map[string]*Node{}}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Node, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, n *Node) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.nodes[n.ID]
	if ok && prev.ContentDigest == n.ContentDigest {
		return Unchanged, nil
	}
	s.nodes[n.ID] = n
	if !ok {
		return Created, nil
	}
	return Updated, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	delete(s.nodes, id)
	return ok, nil
}

func (s *MemoryStore) IDs(_ context.Context, typeName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, n := range s.nodes {
		if n.Type == typeName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Len is the number of stored nodes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Snapshot copies the stored nodes keyed by id.
func (s *MemoryStore) Snapshot() map[string]*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Node, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = n
	}
	return out
}
