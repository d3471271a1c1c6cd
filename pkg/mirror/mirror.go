// Package mirror implements the metrics mirror: a second subscriber to
// the broker's metric stream that writes the latest sample per validator
// into a bbolt-backed key-value store with a TTL, for a separate operator
// HTTP surface to read. It never reads back from the store and never
// emits actions.
package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/pkg/broker"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

var bucketMetrics = []byte("validator_metrics")

// entry is the on-disk record: the sample plus an expiry so a reader can
// tell a stale write from a live one without external coordination.
type entry struct {
	Sample    model.MetricSample `json:"sample"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Store is the bbolt-backed KV store the mirror writes to.
type Store struct {
	db  *bolt.DB
	ttl time.Duration
}

// OpenStore opens (creating if needed) a bbolt database at path with the
// given TTL (default 5 minutes).
func OpenStore(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("mirror: open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mirror: create bucket: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func key(id model.ValidatorId) []byte {
	return []byte(fmt.Sprintf("validator:metrics:%s", id))
}

// Put writes sample under validator:metrics:<id>, refreshing its TTL.
func (s *Store) Put(sample model.MetricSample) error {
	e := entry{Sample: sample, ExpiresAt: time.Now().Add(s.ttl)}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("mirror: marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetrics).Put(key(sample.ValidatorID), data)
	})
}

// Get returns the latest sample for id, or ok=false if there is none or it
// has expired. Expired entries are lazily deleted on read.
func (s *Store) Get(id model.ValidatorId) (model.MetricSample, bool, error) {
	var e entry
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetrics)
		v := b.Get(key(id))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("mirror: unmarshal entry: %w", err)
		}
		if time.Now().After(e.ExpiresAt) {
			return b.Delete(key(id))
		}
		found = true
		return nil
	})
	if err != nil {
		return model.MetricSample{}, false, err
	}
	return e.Sample, found, nil
}

// Mirror subscribes to the broker's metric stream and writes each sample
// to Store. A write failure is logged and swallowed; the mirror is a
// best-effort sink, never a gate on ingestion.
type Mirror struct {
	store  *Store
	broker *broker.Broker
	sub    *broker.Subscriber
	logger *logging.Logger
}

// New builds a Mirror over b, writing into store.
func New(b *broker.Broker, store *Store, logger *logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Default()
	}
	return &Mirror{store: store, broker: b, logger: logger}
}

// Run subscribes and writes samples until ctx-equivalent stop is closed.
func (m *Mirror) Run(stop <-chan struct{}) {
	m.sub = m.broker.SubscribeMetrics()
	defer m.broker.UnsubscribeMetrics(m.sub)
	for {
		select {
		case <-stop:
			return
		case sample := <-m.sub.Chan():
			if err := m.store.Put(sample); err != nil {
				m.logger.Warn("mirror: write failed validator_id=%s err=%v", sample.ValidatorID, err)
			}
		}
	}
}
