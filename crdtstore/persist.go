package crdtstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Storage layout: update blobs under u/<actor>/<seq BE8>, the replica's
// actor id under meta/actor. Key order gives per-actor sequence order
// on iteration.
var (
	keyActor        = []byte("meta/actor")
	keyUpdatePrefix = []byte("u/")
)

func updateKey(actor string, seq uint64) []byte {
	k := make([]byte, 0, len(keyUpdatePrefix)+len(actor)+1+8)
	k = append(k, keyUpdatePrefix...)
	k = append(k, actor...)
	k = append(k, '/')
	return binary.BigEndian.AppendUint64(k, seq)
}

// db abstracts the persistence layer; in-memory stores carry none.
type db interface {
	persist(actor string, seq uint64, blob []byte) error
	Close() error
}

func (s *Store) persistBlobLocked(actor string, seq uint64, blob []byte) error {
	if s.db == nil {
		return nil
	}
	return s.db.persist(actor, seq, blob)
}

type badgerDB struct {
	b *badger.DB
}

func (d *badgerDB) persist(actor string, seq uint64, blob []byte) error {
	return d.b.Update(func(txn *badger.Txn) error {
		return txn.Set(updateKey(actor, seq), blob)
	})
}

func (d *badgerDB) Close() error {
	return d.b.Close()
}

func openBadger(dir string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
}

// Create initializes a new persistent replica in dir and records its
// actor id. The directory must not already hold a store.
func Create(dir string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	bdb, err := openBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	err = bdb.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyActor)
		if err == nil {
			return errors.New("directory already holds a store")
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyActor, []byte(o.actor))
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}
	return newStore(o, &badgerDB{b: bdb}), nil
}

// Open loads a persistent replica from dir, rebuilding state by
// replaying every stored update. The actor id recorded at Create time
// is restored; WithActor is ignored.
func Open(dir string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	bdb, err := openBadger(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var actor string
	var blobs [][]byte
	err = bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyActor)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.New("directory does not hold a store")
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			actor = string(v)
			return nil
		}); err != nil {
			return err
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyUpdatePrefix); it.ValidForPrefix(keyUpdatePrefix); it.Next() {
			blob, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			blobs = append(blobs, blob)
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	o.actor = actor
	s := newStore(o, &badgerDB{b: bdb})
	for _, blob := range blobs {
		u, err := decodeUpdate(blob)
		if err != nil {
			bdb.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		if have := uint64(len(s.updates[u.Actor])); u.Seq != have+1 {
			bdb.Close()
			return nil, fmt.Errorf("open store: gap in stored updates for actor %s at seq %d", u.Actor, u.Seq)
		}
		for _, uo := range u.Ops {
			s.st.apply(uo)
			if uo.ID.Lamport > s.lamport {
				s.lamport = uo.ID.Lamport
			}
		}
		s.updates[u.Actor] = append(s.updates[u.Actor], blob)
	}
	s.logger.Debug("opened store", "actor", actor, "updates", len(blobs))
	return s, nil
}
