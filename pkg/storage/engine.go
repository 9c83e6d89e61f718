package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
)

// Engine is the storage contract the mutation applier and HTTP surface need:
// atomic multi-operation transactions, point lookups by id, and relationship
// traversal by endpoint id.
type Engine interface {
	// Begin starts a read-write transaction with ACID guarantees.
	Begin() (*Tx, error)

	// GetNode retrieves a node by id. Returns ErrNotFound when absent.
	GetNode(id NodeID) (*Node, error)

	// GetEdge retrieves an edge by id. Returns ErrNotFound when absent.
	GetEdge(id EdgeID) (*Edge, error)

	// EdgesByEndpoint returns every edge whose start or end is the given node.
	EdgesByEndpoint(id NodeID) ([]*Edge, error)

	// TypeDefinitions returns all persisted type definitions.
	TypeDefinitions() ([]*schema.TypeDefinition, error)

	// Stats counts stored records.
	Stats() (*Stats, error)

	// Close releases the underlying database.
	Close() error
}

// BadgerEngine implements Engine on top of BadgerDB.
type BadgerEngine struct {
	db       *badger.DB
	inMemory bool
}

var _ Engine = (*BadgerEngine)(nil)

// Open opens (or creates) a badger-backed engine at the given directory.
func Open(dir string) (*BadgerEngine, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening storage at %s: %w", dir, err)
	}
	return &BadgerEngine{db: db}, nil
}

// NewMemoryEngine creates an in-memory engine. Intended for tests and
// ephemeral instances; data is lost on Close.
func NewMemoryEngine() *BadgerEngine {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		// In-memory open only fails on programmer error in the options.
		panic(fmt.Sprintf("opening in-memory storage: %v", err))
	}
	return &BadgerEngine{db: db, inMemory: true}
}

// IsInMemory reports whether the engine has no durable backing.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// Close releases the underlying database. Safe to call once.
func (b *BadgerEngine) Close() error {
	return b.db.Close()
}

// GetNode retrieves a node by id.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

// GetEdge retrieves an edge by id.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

// EdgesByEndpoint returns every edge incident to the given node, via the
// endpoint index. A self-loop edge is returned once.
func (b *BadgerEngine) EdgesByEndpoint(id NodeID) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := incidentEdgeIDsInTxn(txn, id)
		if err != nil {
			return err
		}
		for _, edgeID := range ids {
			edge, err := getEdgeInTxn(txn, edgeID)
			if err == ErrNotFound {
				continue // index entry without a record; skip rather than fail the scan
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	return edges, err
}

// TypeDefinitions scans all persisted type definitions.
func (b *BadgerEngine) TypeDefinitions() ([]*schema.TypeDefinition, error) {
	var defs []*schema.TypeDefinition
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixTypeDef}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				def, err := deserializeTypeDef(val)
				if err != nil {
					return err
				}
				defs = append(defs, def)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return defs, err
}

// Stats counts stored nodes, edges, and type definitions.
func (b *BadgerEngine) Stats() (*Stats, error) {
	stats := &Stats{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) == 0 {
				continue
			}
			switch key[0] {
			case prefixNode:
				stats.Nodes++
			case prefixEdge:
				stats.Edges++
			case prefixTypeDef:
				stats.TypeDefinitions++
			}
		}
		return nil
	})
	return stats, err
}

// Shared transaction-scoped reads
// ============================================================================

func getNodeInTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = deserializeNode(val)
		return decodeErr
	})
	return node, err
}

func getEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = deserializeEdge(val)
		return decodeErr
	})
	return edge, err
}

// incidentEdgeIDsInTxn scans the endpoint index for a node. Self-loops write
// the same (node, edge) key for start and end, so the scan is naturally
// deduplicated per endpoint; callers still see each edge id once.
func incidentEdgeIDsInTxn(txn *badger.Txn, id NodeID) ([]EdgeID, error) {
	prefix := endpointPrefix(id)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []EdgeID
	seen := make(map[EdgeID]struct{})
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		edgeID := edgeIDFromEndpointKey(it.Item().KeyCopy(nil), id)
		if edgeID == "" {
			continue
		}
		if _, ok := seen[edgeID]; ok {
			continue
		}
		seen[edgeID] = struct{}{}
		ids = append(ids, edgeID)
	}
	return ids, nil
}
