package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/rdioexport/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketObjects = []byte("objects")
	bucketUsers   = []byte("users")
)

// storedObject is the on-disk form of a domain.Object
type storedObject struct {
	Type string          `json:"type"`
	Name string          `json:"name"`
	Raw  json.RawMessage `json:"raw"`
}

// ObjectStore implements domain.SyncStore using BoltDB.
// Every object is also kept in memory so ContainsKey never touches disk.
type ObjectStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects objects and users

	objects map[string]storedObject
	users   map[string][]byte // identifier -> UserKeyStore JSON
}

var _ domain.SyncStore = (*ObjectStore)(nil)

// NewObjectStore opens (or creates) the store at path and loads every
// previously synced object into memory. An empty path gives a memory-only store.
func NewObjectStore(path string) (*ObjectStore, error) {
	s := NewMemoryObjectStore()
	if path == "" {
		// Memory-only mode (no persistence)
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketObjects, bucketUsers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	return s, nil
}

// NewMemoryObjectStore returns a store that keeps everything in memory
func NewMemoryObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[string]storedObject),
		users:   make(map[string][]byte),
	}
}

func (s *ObjectStore) load() error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			var obj storedObject
			if err := json.Unmarshal(v, &obj); err != nil {
				return fmt.Errorf("object %s: %w", k, err)
			}
			s.objects[string(k)] = obj
			return nil
		})
	})
}

func (s *ObjectStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Objects ===

func (s *ObjectStore) ContainsKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Put inserts objects that are not stored yet. Objects already present are
// left untouched so a key, once stored, keeps its first value.
func (s *ObjectStore) Put(objs ...*domain.Object) error {
	fresh := make(map[string]storedObject, len(objs))

	s.mu.Lock()
	for _, obj := range objs {
		if obj == nil || obj.Key == "" {
			continue
		}
		if _, ok := s.objects[obj.Key]; ok {
			continue
		}
		so := storedObject{Type: obj.Type, Name: obj.Name, Raw: obj.Raw}
		s.objects[obj.Key] = so
		fresh[obj.Key] = so
	}
	s.mu.Unlock()

	if s.db == nil || len(fresh) == 0 {
		return nil // Memory-only mode
	}

	// Write to BoltDB
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for key, so := range fresh {
			data, err := json.Marshal(so)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ObjectStore) Get(key string) (*domain.Object, bool) {
	s.mu.RLock()
	so, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &domain.Object{Key: key, Type: so.Type, Name: so.Name, Raw: so.Raw}, true
}

// Keys returns every stored key in sorted order
func (s *ObjectStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Objects returns every stored object ordered by key
func (s *ObjectStore) Objects() []*domain.Object {
	keys := s.Keys()
	objs := make([]*domain.Object, 0, len(keys))
	for _, k := range keys {
		if obj, ok := s.Get(k); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Export returns the raw JSON of every stored object keyed by object key
func (s *ObjectStore) Export() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.objects))
	for k, so := range s.objects {
		out[k] = so.Raw
	}
	return out
}

// === User key stores ===

func (s *ObjectStore) SaveUserKeys(identifier string, keys *domain.UserKeyStore) error {
	data, err := json.Marshal(keys.Snapshot())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.users[identifier] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).Put([]byte(identifier), data)
	})
}

func (s *ObjectStore) GetUserKeys(identifier string) (*domain.UserKeyStore, bool) {
	// Check memory first
	s.mu.RLock()
	data, ok := s.users[identifier]
	s.mu.RUnlock()

	if !ok && s.db != nil {
		s.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(bucketUsers).Get([]byte(identifier)); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
		if data != nil {
			s.mu.Lock()
			s.users[identifier] = data
			s.mu.Unlock()
		}
	}
	if data == nil {
		return nil, false
	}

	keys := domain.NewUserKeyStore(nil)
	if err := json.Unmarshal(data, keys); err != nil {
		return nil, false
	}
	return keys, true
}
