package rom

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"playbyte/util"
)

const keyPrefix = "rom/"

// BadgerCache is the persistent hash cache kept under the data root.
type BadgerCache struct {
	db  *badger.DB
	log *logrus.Entry
}

// OpenBadgerCache opens (or creates) the cache at dir. An empty dir keeps the
// cache in memory.
func OpenBadgerCache(dir string, log *logrus.Entry) (*BadgerCache, error) {
	log = util.Component(log, "hashcache")

	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("rom: open hash cache %q: %w", dir, err)
	}
	return &BadgerCache{db: db, log: log}, nil
}

func (c *BadgerCache) Get(key string) (rec Record, ok bool) {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.log.WithError(err).Debug("hash cache read failed")
		}
		return Record{}, false
	}
	return rec, true
}

func (c *BadgerCache) Put(key string, rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), val)
	})
}

// Len counts cached records.
func (c *BadgerCache) Len() (n int) {
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's log lines through logrus.
type badgerLogger struct {
	*logrus.Entry
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Entry.Warnf(format, args...)
}
