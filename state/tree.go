package state

import (
	"errors"

	"github.com/calehh/authchain/store"
	"github.com/cosmos/iavl"
	"github.com/syndtr/goleveldb/leveldb"
)

// treeStore exposes the working IAVL tree as a store.KVStore.
type treeStore struct {
	tree *iavl.MutableTree
}

func (t treeStore) Get(key []byte) ([]byte, error) {
	val, err := t.tree.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

func (t treeStore) Set(key, value []byte) error {
	_, err := t.tree.Set(key, value)
	return err
}

func (t treeStore) Delete(key []byte) error {
	_, _, err := t.tree.Remove(key)
	return err
}

type immutableGetter struct {
	tree *iavl.ImmutableTree
}

func (g immutableGetter) Get(key []byte) ([]byte, error) {
	val, err := g.tree.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

var _ store.KVStore = treeStore{}
var _ store.Getter = immutableGetter{}
