package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

const cachePrefix = "cache/"

// Cache implements cache.Cache.
type Cache struct {
	db *badger.DB
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cachePrefix+key), value)
	})
}

func (c *Cache) Delete(_ context.Context, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(cachePrefix + key))
	})
}
