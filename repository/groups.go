package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/codec"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/store"
)

// rootGroupKey stores the entire group tree as one record.
const rootGroupKey = "group:root"

// Group is a node in the hierarchical group tree. The tree's root carries
// the zero ID; it is identified by its store key, not its path. A zero
// Version marks a record written before versions existed; migration
// backfills it.
type Group struct {
	ID      id.JobID  `json:"id"`
	Version time.Time `json:"version,omitzero"`
	Jobs    []JobDef  `json:"jobs,omitempty"`
	Groups  []Group   `json:"groups,omitempty"`
}

// Groups stores the group tree.
type Groups struct {
	client *store.Client
	codec  codec.JSON[Group]
}

// NewGroups creates a group tree repository.
func NewGroups(client *store.Client) *Groups {
	return &Groups{client: client, codec: codec.NewJSON[Group]()}
}

// Root returns the root of the group tree. Fails with
// roster.ErrGroupNotFound if no tree has been stored.
func (r *Groups) Root(ctx context.Context) (*Group, error) {
	data, err := r.client.Fetch(ctx, rootGroupKey)
	if err != nil {
		if errors.Is(err, roster.ErrKeyNotFound) {
			return nil, roster.ErrGroupNotFound
		}
		return nil, err
	}

	g, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("roster/repository: root group: %w", err)
	}
	return &g, nil
}

// PutRoot stores the root of the group tree, replacing the previous tree.
func (r *Groups) PutRoot(ctx context.Context, g *Group) error {
	data, err := r.codec.Encode(*g)
	if err != nil {
		return fmt.Errorf("roster/repository: root group: %w", err)
	}

	return r.client.Put(ctx, rootGroupKey, data)
}
