package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/dswarm/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCategories = []byte("categories")
	bucketBlocklist  = []byte("blocklist")
	bucketFactories  = []byte("factories")
)

// BoltStore implements Store using BoltDB, one bucket per entity kind,
// JSON-encoded values keyed by the entity's natural name (spec §4.12).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the manager's state database.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "dswarm.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketCategories, bucketBlocklist, bucketFactories}
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

// Category operations
func (s *BoltStore) SaveCategory(c *types.Category) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCategories)
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(c.Name), data)
	})
}

func (s *BoltStore) GetCategory(name string) (*types.Category, error) {
	var c types.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCategories)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("category not found: %s", name)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCategories() ([]*types.Category, error) {
	var categories []*types.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCategories)
		return b.ForEach(func(k, v []byte) error {
			var c types.Category
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			categories = append(categories, &c)
			return nil
		})
	})
	return categories, err
}

func (s *BoltStore) DeleteCategory(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCategories)
		return b.Delete([]byte(name))
	})
}

// Blocklist operations
func (s *BoltStore) SaveBlocklistEntry(entry *types.BlocklistEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocklist)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.Host), data)
	})
}

func (s *BoltStore) GetBlocklistEntry(host string) (*types.BlocklistEntry, error) {
	var entry types.BlocklistEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocklist)
		data := b.Get([]byte(host))
		if data == nil {
			return fmt.Errorf("blocklist entry not found: %s", host)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltStore) ListBlocklistEntries() ([]*types.BlocklistEntry, error) {
	var entries []*types.BlocklistEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocklist)
		return b.ForEach(func(k, v []byte) error {
			var entry types.BlocklistEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) DeleteBlocklistEntry(host string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocklist)
		return b.Delete([]byte(host))
	})
}

// Factory operations
func (s *BoltStore) SaveFactory(f *types.FactoryInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFactories)
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return b.Put([]byte(f.Name), data)
	})
}

func (s *BoltStore) GetFactory(name string) (*types.FactoryInfo, error) {
	var f types.FactoryInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFactories)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("factory not found: %s", name)
		}
		return json.Unmarshal(data, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *BoltStore) ListFactories() ([]*types.FactoryInfo, error) {
	var factories []*types.FactoryInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFactories)
		return b.ForEach(func(k, v []byte) error {
			var f types.FactoryInfo
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			factories = append(factories, &f)
			return nil
		})
	})
	return factories, err
}

func (s *BoltStore) DeleteFactory(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFactories)
		return b.Delete([]byte(name))
	})
}
