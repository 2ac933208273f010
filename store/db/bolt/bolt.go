// Package bolt stores conversations in a single embedded BoltDB file.
//
// Layout:
//
//	conversation/<id>            -> JSON conversation record
//	message/<conversation id>/   -> nested bucket, key is the big-endian message id
package bolt

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/store"
)

var (
	conversationBucket = []byte("conversation")
	messageBucket      = []byte("message")
)

type DB struct {
	db      *bolt.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}
	if err := os.MkdirAll(filepath.Dir(profile.DSN), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", profile.DSN)
	}

	db, err := bolt.Open(profile.DSN, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bolt db: %s", profile.DSN)
	}
	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(_ context.Context) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{conversationBucket, messageBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "failed to create bucket %s", name)
			}
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
