package store

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc/internal/model"
)

var (
	subsPrefix    = []byte("subs")
	inboundPrefix = []byte("in")
)

type diskStore struct {
	db *badger.DB
}

// NewDisk opens a badger database in dir, so that a session survives a restart of the process.
func NewDisk(dir string) (Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(log.StandardLogger())
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening session store")
	}

	return &diskStore{db: db}, nil
}

func (s *diskStore) Close() error {
	return s.db.Close()
}

func subKey(topic string) []byte {
	key := make([]byte, 0, len(subsPrefix)+len(topic))
	key = append(key, subsPrefix...)
	return append(key, topic...)
}

func inboundKey(id uint16) []byte {
	key := make([]byte, len(inboundPrefix)+2)
	copy(key, inboundPrefix)
	binary.BigEndian.PutUint16(key[len(inboundPrefix):], id)
	return key
}

func (s *diskStore) AddSubscription(topic string, qos model.QoS) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(subKey(topic), []byte{byte(qos)})
	})
}

func (s *diskStore) RemoveSubscription(topic string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(subKey(topic))
	})
}

// Load all subscriptions from store.
func (s *diskStore) Subscriptions(iter func(topic string, qos model.QoS)) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(subsPrefix); it.ValidForPrefix(subsPrefix); it.Next() {
			item := it.Item()
			k := item.Key()
			err := item.Value(func(val []byte) error {
				if len(val) != 1 {
					return errors.Errorf("corrupt subscription entry %q", k)
				}
				iter(string(k[len(subsPrefix):]), model.QoS(val[0]))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *diskStore) PutInbound(id uint16, msg model.Message) error {
	val, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(inboundKey(id), val)
	})
}

func (s *diskStore) TakeInbound(id uint16) (msg model.Message, ok bool, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		key := inboundKey(id)
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		err = item.Value(func(val []byte) (err error) {
			msg, err = decodeMessage(val)
			return
		})
		if err != nil {
			return err
		}
		ok = true
		return txn.Delete(key)
	})
	return
}

func (s *diskStore) HasInbound(id uint16) (ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(inboundKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		ok = err == nil
		return err
	})
	return
}

func (s *diskStore) ClearInbound() error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(inboundPrefix); it.ValidForPrefix(inboundPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			if err != badger.ErrTxnTooBig {
				txn.Discard()
				return err
			}
			if err = txn.Commit(); err != nil {
				txn.Discard()
				return err
			}
			txn = s.db.NewTransaction(true)
			if err = txn.Delete(k); err != nil {
				txn.Discard()
				return err
			}
		}
	}
	return txn.Commit()
}
