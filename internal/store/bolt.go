package store

import (
	"context"
	"encoding/binary"
	"path"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/pkg/common"
	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("catalog_entries")
	pendingBucket = []byte("pending_requests")

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// BoltStore keeps the catalog in an embedded bbolt file. Entries are keyed
// by snapshot position then id, pending requests by their time ordered id.
type BoltStore struct {
	db *bolt.DB
}

var _ Backend = (*BoltStore)(nil)

// OpenBoltStore opens (or creates) the bbolt file at path
func OpenBoltStore(filename string) (*BoltStore, error) {
	db, err := bolt.Open(filename, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt store %s", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bolt buckets")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Entries(ctx context.Context) ([]*domain.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []*domain.CatalogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			var e domain.CatalogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrap(err, "decode catalog entry")
			}
			entries = append(entries, &e)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) ReplaceAll(ctx context.Context, entries []*domain.CatalogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(entriesBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(entriesBucket)
		if err != nil {
			return err
		}
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return errors.Wrap(err, "encode catalog entry")
			}
			if err := b.Put(entryKey(e), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) SetFavourite(ctx context.Context, id int64, favourite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if int64(binary.BigEndian.Uint64(k[8:])) != id {
				continue
			}
			var e domain.CatalogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return errors.Wrap(err, "decode catalog entry")
			}
			e.IsFavourite = favourite
			data, err := json.Marshal(&e)
			if err != nil {
				return err
			}
			return b.Put(append([]byte(nil), k...), data)
		}
		return errors.Wrapf(domain.ErrNotFound, "catalog entry %d", id)
	})
}

func (s *BoltStore) EnqueuePending(ctx context.Context, req *domain.PendingCreateRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.ID == 0 {
		req.ID = common.UUIDint64()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode pending request")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(idKey(req.ID), data)
	})
}

func (s *BoltStore) PendingRequests(ctx context.Context) ([]*domain.PendingCreateRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var reqs []*domain.PendingCreateRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			var r domain.PendingCreateRequest
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrap(err, "decode pending request")
			}
			reqs = append(reqs, &r)
			return nil
		})
	})
	return reqs, err
}

func (s *BoltStore) DeletePending(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pendingBucket)
		key := idKey(id)
		if b.Get(key) == nil {
			return errors.Wrapf(domain.ErrNotFound, "pending request %d", id)
		}
		return b.Delete(key)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func entryKey(e *domain.CatalogEntry) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(e.Position))
	binary.BigEndian.PutUint64(k[8:], uint64(e.ID))
	return k
}

func boltPath(cfg config.DBConfig, workdir string) string {
	name := common.IfEmptyStr(cfg.Name, "prodcatalog.bolt")
	if path.IsAbs(name) || workdir == "" || strings.HasPrefix(name, ".") {
		return name
	}
	return path.Join(workdir, "data", name)
}
