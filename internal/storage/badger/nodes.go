package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	nodes "github.com/hanpama/graphsync/internal/nodes"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	nodePrefix  = "node/"
	indexPrefix = "type/"
)

// NodeStore implements nodes.Store. Each node is one structpb.Struct under
// node/<id>, plus an empty index key type/<typeName>/<id> keyed by the local
// type name.
type NodeStore struct {
	db *badger.DB
}

func nodeKey(id string) []byte { return []byte(nodePrefix + id) }

func indexKey(typeName, id string) []byte {
	return []byte(indexPrefix + typeName + "/" + id)
}

func (s *NodeStore) Get(_ context.Context, id string) (*nodes.Node, bool, error) {
	var n *nodes.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = getNode(txn, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return n, n != nil, nil
}

func (s *NodeStore) Upsert(_ context.Context, n *nodes.Node) (nodes.Action, error) {
	data, err := encodeNode(n)
	if err != nil {
		return "", err
	}
	var action nodes.Action
	err = s.db.Update(func(txn *badger.Txn) error {
		prev, err := getNode(txn, n.ID)
		if err != nil {
			return err
		}
		switch {
		case prev == nil:
			action = nodes.Created
		case prev.ContentDigest == n.ContentDigest:
			action = nodes.Unchanged
			return nil
		default:
			action = nodes.Updated
			if prev.Type != n.Type {
				if err := txn.Delete(indexKey(prev.Type, n.ID)); err != nil {
					return err
				}
			}
		}
		if err := txn.Set(nodeKey(n.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(n.Type, n.ID), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("upsert node %s: %w", n.ID, err)
	}
	return action, nil
}

func (s *NodeStore) Delete(_ context.Context, id string) (bool, error) {
	var found bool
	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getNode(txn, id)
		if err != nil || prev == nil {
			return err
		}
		found = true
		if err := txn.Delete(indexKey(prev.Type, id)); err != nil {
			return err
		}
		return txn.Delete(nodeKey(id))
	})
	if err != nil {
		return false, fmt.Errorf("delete node %s: %w", id, err)
	}
	return found, nil
}

func (s *NodeStore) IDs(_ context.Context, typeName string) ([]string, error) {
	prefix := []byte(indexPrefix + typeName + "/")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s nodes: %w", typeName, err)
	}
	return ids, nil
}

func getNode(txn *badger.Txn, id string) (*nodes.Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeNode(data)
}

func encodeNode(n *nodes.Node) ([]byte, error) {
	fields := n.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	s, err := structpb.NewStruct(map[string]any{
		"id":             n.ID,
		"type":           n.Type,
		"remoteTypeName": n.RemoteTypeName,
		"remoteId":       map[string]any(n.RemoteID),
		"fields":         fields,
		"contentDigest":  n.ContentDigest,
	})
	if err != nil {
		return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return proto.Marshal(s)
}

func decodeNode(data []byte) (*nodes.Node, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	m := s.AsMap()
	str := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	remoteID, _ := m["remoteId"].(map[string]any)
	fields, _ := m["fields"].(map[string]any)
	return &nodes.Node{
		ID:             str("id"),
		Type:           str("type"),
		RemoteTypeName: str("remoteTypeName"),
		RemoteID:       nodes.RemoteID(remoteID),
		Fields:         fields,
		ContentDigest:  str("contentDigest"),
	}, nil
}
