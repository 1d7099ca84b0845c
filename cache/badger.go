package cache

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/log"
)

// BadgerDB persists fetched element versions across runs. Element
// versions are immutable in the API, so entries never need
// invalidation.
type BadgerDB struct {
	db *badger.DB
}

func OpenBadger(dir string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log.NewLogger("cache")}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache in %s", dir)
	}
	return &BadgerDB{db: db}, nil
}

// Get returns nil data for missing keys.
func (db *BadgerDB) Get(key []byte) ([]byte, error) {
	var data []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	return data, err
}

func (db *BadgerDB) Put(key, value []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (db *BadgerDB) Delete(key []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (db *BadgerDB) Close() error {
	return db.db.Close()
}

// badgerLogger forwards badger's own log output to our filter.
type badgerLogger struct {
	l *log.Logger
}

func (b badgerLogger) Errorf(format string, v ...interface{})   { b.l.Errorf(format, v...) }
func (b badgerLogger) Warningf(format string, v ...interface{}) { b.l.Warnf(format, v...) }
func (b badgerLogger) Infof(format string, v ...interface{})    { b.l.Debugf(format, v...) }
func (b badgerLogger) Debugf(format string, v ...interface{})   { b.l.Debugf(format, v...) }
