// Package nodes normalizes remote items into cached nodes with stable
// identities.
package nodes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"
)

// Node is one cached remote item.
type Node struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	RemoteTypeName string         `json:"remoteTypeName"`
	RemoteID       RemoteID       `json:"remoteId"`
	Fields         map[string]any `json:"fields"`
	ContentDigest  string         `json:"contentDigest"`
}

// RemoteID holds the values of a node type's identity fields, usually
// __typename and id.
type RemoteID map[string]any

// Key is the canonical JSON form of the id.
func (r RemoteID) Key() string {
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		return fmt.Sprint(map[string]any(r))
	}
	return string(b)
}

// Action is what an upsert or delete did to the store.
type Action string

const (
	Created   Action = "create"
	Updated   Action = "update"
	Unchanged Action = "unchanged"
	Deleted   Action = "delete"
)

var digestKey = []byte("graphsync-content-digest-key-256")

// Digest hashes the canonical JSON of fields.
func Digest(fields map[string]any) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	h, err := highwayhash.New64(digestKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Builder turns remote items into nodes for one type prefix.
type Builder struct {
	prefix    string
	namespace uuid.UUID
}

func NewBuilder(prefix string) *Builder {
	return &Builder{
		prefix:    prefix,
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("graphsync:"+prefix)),
	}
}

func (b *Builder) Prefix() string { return b.prefix }

// TypeName is the local type name of a remote type.
func (b *Builder) TypeName(remoteTypeName string) string {
	return b.prefix + remoteTypeName
}

// ID derives the node id. The same remote type and id always give the same
// node id under one prefix.
func (b *Builder) ID(remoteTypeName string, id RemoteID) string {
	return uuid.NewSHA1(b.namespace, []byte(remoteTypeName+"\x00"+id.Key())).String()
}

// RemoteIDOf picks the identity fields out of item. Values are kept as
// strings so an id read from a change log matches the same id read from a
// list page.
func RemoteIDOf(item map[string]any, idFields []string) (RemoteID, error) {
	id := make(RemoteID, len(idFields))
	for _, name := range idFields {
		v, ok := item[name]
		if !ok || v == nil {
			return nil, fmt.Errorf("item has no %s", name)
		}
		id[name] = identityString(v)
	}
	return id, nil
}

func identityString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Build normalizes one item of remoteTypeName.
func (b *Builder) Build(remoteTypeName string, idFields []string, item map[string]any) (*Node, error) {
	id, err := RemoteIDOf(item, idFields)
	if err != nil {
		return nil, fmt.Errorf("build %s node: %w", remoteTypeName, err)
	}
	fields := make(map[string]any, len(item))
	for k, v := range item {
		fields[k] = plainValue(v)
	}
	digest, err := Digest(fields)
	if err != nil {
		return nil, fmt.Errorf("build %s node: %w", remoteTypeName, err)
	}
	return &Node{
		ID:             b.ID(remoteTypeName, id),
		Type:           b.TypeName(remoteTypeName),
		RemoteTypeName: remoteTypeName,
		RemoteID:       id,
		Fields:         fields,
		ContentDigest:  digest,
	}, nil
}

// plainValue replaces json.Number with int64, or float64 when the number
// is not an integer, so fields hold only values a structpb.Value accepts.
func plainValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = plainValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plainValue(e)
		}
		return out
	}
	return v
}
