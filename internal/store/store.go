// Package store persists wanted node states so that they survive a restart
// of the coordinator. One bbolt bucket is kept per cluster, keyed by node
// ("storage.2") with the JSON encoded wanted state as value.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/dreamware/clusterstate/internal/cluster"
)

// FileName is the database file created in the data directory.
const FileName = "wanted-states.db"

// Store is a bbolt-backed wanted-state store.
//
// Thread Safety:
// All methods are safe for concurrent use. Writes are serialized by bbolt;
// Load runs in a read transaction and does not block other readers.
//
// Example:
//
//	st, err := store.Open("data", log)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	wanted, err := st.Load("music")
//	if err != nil {
//	    return err
//	}
//	reg.Restore(wanted)
type Store struct {
	db  *bolt.DB
	log logrus.FieldLogger
}

// Open opens, creating if needed, the store in dir.
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	path := filepath.Join(dir, FileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records ns as the wanted state of n in cluster.
func (s *Store) Put(clusterName string, n cluster.Node, ns cluster.NodeState) error {
	value, err := json.Marshal(ns)
	if err != nil {
		return errors.Wrap(err, "encode wanted state")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(clusterName))
		if err != nil {
			return err
		}
		return b.Put([]byte(n.String()), value)
	})
	return errors.Wrapf(err, "store wanted state of %s/%s", clusterName, n)
}

// Load returns every wanted state stored for cluster. Entries that cannot
// be decoded are logged and skipped.
func (s *Store) Load(clusterName string) (map[cluster.Node]cluster.NodeState, error) {
	out := make(map[cluster.Node]cluster.NodeState)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(clusterName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			n, err := cluster.ParseNode(string(k))
			if err != nil {
				s.log.WithField("key", string(k)).WithError(err).Warn("skipping stored wanted state")
				return nil
			}
			var ns cluster.NodeState
			if err := json.Unmarshal(v, &ns); err != nil {
				s.log.WithField("node", n.String()).WithError(err).Warn("skipping stored wanted state")
				return nil
			}
			ns.Type = n.Type
			out[n] = ns
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load wanted states of %s", clusterName)
	}
	return out, nil
}

// HandleNewWantedNodeState persists every applied wanted state. It
// implements coordinator.Listener; failures are logged.
func (s *Store) HandleNewWantedNodeState(info cluster.NodeInfo, newState cluster.NodeState) {
	if err := s.Put(info.Cluster, info.Node, newState); err != nil {
		s.log.WithError(err).Error("cannot persist wanted state")
	}
}
