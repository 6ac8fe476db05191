package store

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrReadOnly = errors.New("store is read only")
)

// KVStore is the keyed view every component reads and writes through.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

// CacheStore buffers writes on top of a parent store. Nothing reaches the
// parent until Write is called, so a failed transaction is dropped by simply
// discarding its branch.
type CacheStore struct {
	parent KVStore
	dirty  map[string][]byte
	gone   map[string]bool
}

func NewCacheStore(parent KVStore) *CacheStore {
	return &CacheStore{
		parent: parent,
		dirty:  make(map[string][]byte),
		gone:   make(map[string]bool),
	}
}

func (c *CacheStore) Get(key []byte) ([]byte, error) {
	k := string(key)
	if c.gone[k] {
		return nil, nil
	}
	if v, ok := c.dirty[k]; ok {
		return v, nil
	}
	return c.parent.Get(key)
}

func (c *CacheStore) Set(key, value []byte) error {
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)
	c.dirty[k] = v
	delete(c.gone, k)
	return nil
}

func (c *CacheStore) Delete(key []byte) error {
	k := string(key)
	delete(c.dirty, k)
	c.gone[k] = true
	return nil
}

// Write flushes buffered changes to the parent in key order. IAVL tree shape
// depends on insertion order, so the order must be deterministic.
func (c *CacheStore) Write() error {
	keys := make([]string, 0, len(c.dirty)+len(c.gone))
	for k := range c.dirty {
		keys = append(keys, k)
	}
	for k := range c.gone {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if c.gone[k] {
			if err := c.parent.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := c.parent.Set([]byte(k), c.dirty[k]); err != nil {
			return err
		}
	}
	c.dirty = make(map[string][]byte)
	c.gone = make(map[string]bool)
	return nil
}

// Dirty reports the number of pending writes and deletes.
func (c *CacheStore) Dirty() int {
	return len(c.dirty) + len(c.gone)
}

type MemStore struct {
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *MemStore) Set(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemStore) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *MemStore) Len() int {
	return len(m.data)
}

type Getter interface {
	Get(key []byte) ([]byte, error)
}

// ReadOnly wraps a getter so that accidental writes from a query path fail.
type ReadOnly struct {
	Getter
}

func (ReadOnly) Set(key, value []byte) error { return ErrReadOnly }
func (ReadOnly) Delete(key []byte) error     { return ErrReadOnly }

func GetJSON(kv KVStore, key []byte, v any) (found bool, err error) {
	val, err := kv.Get(key)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, nil
	}
	if err = json.Unmarshal(val, v); err != nil {
		return false, err
	}
	return true, nil
}

func SetJSON(kv KVStore, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(key, val)
}

func GetUint64(kv KVStore, key []byte) (n uint64, err error) {
	val, err := kv.Get(key)
	if err != nil || val == nil {
		return 0, err
	}
	err = rlp.DecodeBytes(val, &n)
	return
}

func SetUint64(kv KVStore, key []byte, n uint64) error {
	val, err := rlp.EncodeToBytes(n)
	if err != nil {
		return err
	}
	return kv.Set(key, val)
}

func Has(kv KVStore, key []byte) (bool, error) {
	val, err := kv.Get(key)
	if err != nil {
		return false, err
	}
	return val != nil, nil
}
