package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/anvil/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNodes        = []byte("nodes")
	bucketGraphs       = []byte("graphs")
	bucketStates       = []byte("states")
	bucketCluster      = []byte("cluster")
	bucketTransactions = []byte("transactions")

	keyClusterAttributes = []byte("attributes")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "anvil.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes,
			bucketGraphs,
			bucketStates,
			bucketCluster,
			bucketTransactions,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket, key []byte, v interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("empty key in bucket %s", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *BoltStore) get(bucket, key []byte, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// --- Node Operations ---

func (s *BoltStore) CreateNode(node *types.Node) error {
	if node.ID.IsSync() {
		return fmt.Errorf("node id is required")
	}
	return s.put(bucketNodes, []byte(node.ID), node)
}

func (s *BoltStore) GetNode(id types.NodeID) (*types.Node, error) {
	var node types.Node
	if err := s.get(bucketNodes, []byte(id), &node); err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	return &node, nil
}

// ListNodes returns nodes sorted by id
func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	ids := make([]types.NodeID, len(nodes))
	byID := make(map[types.NodeID]*types.Node, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
		byID[node.ID] = node
	}
	types.SortNodeIDs(ids)
	for i, id := range ids {
		nodes[i] = byID[id]
	}
	return nodes, nil
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node) // Same as create (upsert)
}

// DeleteNode removes a node and its applied state
func (s *BoltStore) DeleteNode(id types.NodeID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketNodes).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketStates).Delete([]byte(id))
	})
}

// --- Deployment Graph Operations ---

func (s *BoltStore) PutGraph(graph *types.DeploymentGraph) error {
	if graph.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	return s.put(bucketGraphs, []byte(graph.Name), graph)
}

func (s *BoltStore) GetGraph(name string) (*types.DeploymentGraph, error) {
	var graph types.DeploymentGraph
	if err := s.get(bucketGraphs, []byte(name), &graph); err != nil {
		return nil, fmt.Errorf("graph %s: %w", name, err)
	}
	return &graph, nil
}

// ListGraphs returns graphs in name order
func (s *BoltStore) ListGraphs() ([]*types.DeploymentGraph, error) {
	var graphs []*types.DeploymentGraph
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraphs)
		return b.ForEach(func(k, v []byte) error {
			var graph types.DeploymentGraph
			if err := json.Unmarshal(v, &graph); err != nil {
				return err
			}
			graphs = append(graphs, &graph)
			return nil
		})
	})
	return graphs, err
}

func (s *BoltStore) DeleteGraph(name string) error {
	return s.delete(bucketGraphs, []byte(name))
}

// --- Deployment Data Operations ---

func (s *BoltStore) PutNodeState(state *types.NodeState) error {
	if state.NodeID.IsSync() {
		return fmt.Errorf("node id is required")
	}
	return s.put(bucketStates, []byte(state.NodeID), state)
}

func (s *BoltStore) GetNodeState(id types.NodeID) (*types.NodeState, error) {
	var state types.NodeState
	if err := s.get(bucketStates, []byte(id), &state); err != nil {
		return nil, fmt.Errorf("state of node %s: %w", id, err)
	}
	return &state, nil
}

func (s *BoltStore) PutClusterAttributes(attrs map[string]interface{}) error {
	return s.put(bucketCluster, keyClusterAttributes, attrs)
}

// GetClusterAttributes returns an empty map when none were stored
func (s *BoltStore) GetClusterAttributes() (map[string]interface{}, error) {
	attrs := make(map[string]interface{})
	err := s.get(bucketCluster, keyClusterAttributes, &attrs)
	if errors.Is(err, ErrNotFound) {
		return attrs, nil
	}
	return attrs, err
}

// --- Transaction Operations ---

func (s *BoltStore) CreateTransaction(tx *types.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	return s.put(bucketTransactions, []byte(tx.ID), tx)
}

func (s *BoltStore) GetTransaction(id string) (*types.Transaction, error) {
	var tx types.Transaction
	if err := s.get(bucketTransactions, []byte(id), &tx); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return &tx, nil
}

// ListTransactions returns transactions oldest first
func (s *BoltStore) ListTransactions() ([]*types.Transaction, error) {
	var txs []*types.Transaction
	err := s.db.View(func(btx *bolt.Tx) error {
		b := btx.Bucket(bucketTransactions)
		return b.ForEach(func(k, v []byte) error {
			var tx types.Transaction
			if err := json.Unmarshal(v, &tx); err != nil {
				return err
			}
			txs = append(txs, &tx)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

func (s *BoltStore) UpdateTransaction(tx *types.Transaction) error {
	return s.CreateTransaction(tx)
}
