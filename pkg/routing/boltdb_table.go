package routing

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/skycoin/busnet/pkg/dll"
)

var boltDBBucket = []byte("nexthops")

var errStopRange = errors.New("iterator stopped")

// boltDBTable implements Table on top of BoltDB so the last computed routes
// survive a restart.
type boltDBTable struct {
	db *bbolt.DB
}

// BoltDBTable opens (or creates) a Table stored at path.
func BoltDBTable(path string) (Table, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open routing table %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return pkgerrors.Wrap(err, "failed to create bucket")
		}
		return nil
	})
	if err != nil {
		db.Close() // nolint: errcheck
		return nil, err
	}

	return &boltDBTable{db: db}, nil
}

func (t *boltDBTable) SetNextHop(dest Addr, hop dll.Addr) error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltDBBucket)
		if hop == Unresolved {
			return b.Delete(destKey(dest))
		}
		return b.Put(destKey(dest), []byte{byte(hop)})
	})
}

func (t *boltDBTable) NextHop(dest Addr) (dll.Addr, error) {
	hop := Unresolved
	err := t.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(boltDBBucket).Get(destKey(dest)); len(v) == 1 {
			hop = dll.Addr(v[0])
		}
		return nil
	})
	return hop, err
}

func (t *boltDBTable) Range(rangeFunc RangeFunc) error {
	err := t.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).ForEach(func(k, v []byte) error {
			if len(k) != 1 || len(v) != 1 {
				return nil
			}
			if !rangeFunc(Addr(k[0]), dll.Addr(v[0])) {
				return errStopRange
			}
			return nil
		})
	})
	if err == errStopRange {
		return nil
	}
	return err
}

func (t *boltDBTable) Count() (count int) {
	err := t.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(boltDBBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0
	}
	return count
}

func (t *boltDBTable) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}

func destKey(dest Addr) []byte {
	return []byte{byte(dest)}
}
