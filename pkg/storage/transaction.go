// Package storage - transaction wrapper with ACID guarantees.
//
// Tx wraps Badger's native read-write transaction. All reads inside a Tx see
// the transaction's own pending writes, which is what lets a batch create a
// node and delete it (with cascade) before anything is committed.
package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxStatusActive     TxStatus = "active"
	TxStatusCommitted  TxStatus = "committed"
	TxStatusRolledBack TxStatus = "rolled_back"
)

// Tx is one atomic unit of graph mutations: every operation takes effect at
// Commit or not at all.
type Tx struct {
	mu sync.Mutex

	// Transaction identity
	ID        string
	StartTime time.Time
	Status    TxStatus

	badgerTx *badger.Txn
}

// Begin starts a new read-write transaction.
func (b *BadgerEngine) Begin() (*Tx, error) {
	return &Tx{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Status:    TxStatusActive,
		badgerTx:  b.db.NewTransaction(true),
	}, nil
}

// IsActive returns true while the transaction can still accept operations.
func (tx *Tx) IsActive() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.Status == TxStatusActive
}

func (tx *Tx) ensureActive() error {
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	return nil
}

// GetNode reads a node, including this transaction's pending writes.
func (tx *Tx) GetNode(id NodeID) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}
	return getNodeInTxn(tx.badgerTx, id)
}

// GetEdge reads an edge, including this transaction's pending writes.
func (tx *Tx) GetEdge(id EdgeID) (*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInvalidID
	}
	return getEdgeInTxn(tx.badgerTx, id)
}

// PutNode upserts a node record.
func (tx *Tx) PutNode(node *Node) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return err
	}
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	data, err := serializeNode(node)
	if err != nil {
		return err
	}
	return tx.badgerTx.Set(nodeKey(node.ID), data)
}

// PutEdge upserts an edge record and its endpoint index entries. Both
// endpoints must resolve to nodes visible in this transaction.
func (tx *Tx) PutEdge(edge *Edge) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return err
	}
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	if edge.StartID == "" || edge.EndID == "" {
		return ErrInvalidData
	}

	for _, endpoint := range []NodeID{edge.StartID, edge.EndID} {
		if _, err := getNodeInTxn(tx.badgerTx, endpoint); err == ErrNotFound {
			return fmt.Errorf("%w: %s", ErrDanglingEndpoint, endpoint)
		} else if err != nil {
			return err
		}
	}

	data, err := serializeEdge(edge)
	if err != nil {
		return err
	}
	if err := tx.badgerTx.Set(edgeKey(edge.ID), data); err != nil {
		return err
	}
	if err := tx.badgerTx.Set(endpointKey(edge.StartID, edge.ID), []byte{}); err != nil {
		return err
	}
	return tx.badgerTx.Set(endpointKey(edge.EndID, edge.ID), []byte{})
}

// DeleteNode removes a node and cascades to every incident edge, so no edge
// can survive with a dangling endpoint. Returns the number of edges removed.
func (tx *Tx) DeleteNode(id NodeID) (int, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return 0, err
	}
	if id == "" {
		return 0, ErrInvalidID
	}
	if _, err := getNodeInTxn(tx.badgerTx, id); err != nil {
		return 0, err
	}

	edgeIDs, err := incidentEdgeIDsInTxn(tx.badgerTx, id)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, edgeID := range edgeIDs {
		if err := tx.deleteEdgeLocked(edgeID); err == ErrNotFound {
			continue
		} else if err != nil {
			return 0, err
		}
		removed++
	}
	if err := tx.badgerTx.Delete(nodeKey(id)); err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteEdge removes an edge and its endpoint index entries.
func (tx *Tx) DeleteEdge(id EdgeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return err
	}
	if id == "" {
		return ErrInvalidID
	}
	return tx.deleteEdgeLocked(id)
}

func (tx *Tx) deleteEdgeLocked(id EdgeID) error {
	edge, err := getEdgeInTxn(tx.badgerTx, id)
	if err != nil {
		return err
	}
	if err := tx.badgerTx.Delete(endpointKey(edge.StartID, edge.ID)); err != nil {
		return err
	}
	if edge.EndID != edge.StartID {
		if err := tx.badgerTx.Delete(endpointKey(edge.EndID, edge.ID)); err != nil {
			return err
		}
	}
	return tx.badgerTx.Delete(edgeKey(id))
}

// PutTypeDefinition persists a type definition so it takes effect atomically
// with the rest of the batch.
func (tx *Tx) PutTypeDefinition(def *schema.TypeDefinition) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return err
	}
	if def == nil || def.Label == "" {
		return ErrInvalidData
	}
	data, err := serializeTypeDef(def)
	if err != nil {
		return err
	}
	return tx.badgerTx.Set(typeDefKey(def.Kind, def.Label), data)
}

// Commit makes all pending operations durable.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.ensureActive(); err != nil {
		return err
	}
	if err := tx.badgerTx.Commit(); err != nil {
		tx.Status = TxStatusRolledBack
		return fmt.Errorf("committing transaction %s: %w", tx.ID, err)
	}
	tx.Status = TxStatusCommitted
	return nil
}

// Rollback discards all pending operations. Safe to call after Commit.
func (tx *Tx) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return
	}
	tx.badgerTx.Discard()
	tx.Status = TxStatusRolledBack
}
