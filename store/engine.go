// Package store implements the embedded ordered key-value engine the
// rest of the node persists through: a single bbolt bucket holding
// ASCII-prefixed keys (block:, header:, height:, tx:, utxo:,
// meta:chain_tip, meta:tip_height), atomic batched writes, prefix
// iteration, flush and compaction.
package store

import (
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"btpc.dev/node/internal/log"
)

var rootBucket = []byte("btpc")

// Engine wraps a single bbolt database file.
type Engine struct {
	db   *bolt.DB
	path string
}

// Open creates or opens the engine's database file under dataDir.
func Open(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, storageErr(IoFailed, "store: mkdir data dir: "+err.Error())
	}
	path := filepath.Join(dataDir, "chain.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, storageErr(IoFailed, "store: open: "+err.Error())
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, storageErr(Corrupted, "store: init bucket: "+err.Error())
	}
	log.Storage.Info().Str("path", path).Msg("storage engine opened")
	return &Engine{db: db, path: path}, nil
}

// Close releases the underlying file handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Get returns the value stored under key, or ok=false if absent.
func (e *Engine) Get(key []byte) (value []byte, ok bool, err error) {
	err = e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket)
		v := b.Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, false, storageErr(IoFailed, "store: get: "+err.Error())
	}
	return value, ok, nil
}

// Put stores a single key/value pair.
func (e *Engine) Put(key, value []byte) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put(key, value)
	})
	if err != nil {
		return storageErr(IoFailed, "store: put: "+err.Error())
	}
	return nil
}

// Delete removes a single key, a no-op if the key is absent.
func (e *Engine) Delete(key []byte) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(key)
	})
	if err != nil {
		return storageErr(IoFailed, "store: delete: "+err.Error())
	}
	return nil
}

// KV is a single key/value pair, used by PutBatch.
type KV struct {
	Key   []byte
	Value []byte
}

// PutBatch writes every pair atomically: all or none land.
func (e *Engine) PutBatch(pairs []KV) error {
	return e.WriteBatch(nil, pairs)
}

// WriteBatch deletes every key in deletes and puts every pair in puts
// as a single atomic bbolt transaction — the storage primitive the
// UTXO set's apply_block/undo_block and the chain engine's reorg path
// are both built on.
func (e *Engine) WriteBatch(deletes [][]byte, puts []KV) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket)
		for _, k := range deletes {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for _, kv := range puts {
			if err := b.Put(kv.Key, kv.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(IoFailed, "store: write_batch: "+err.Error())
	}
	return nil
}

// IterPrefix calls fn for every key with the given prefix, in
// ascending key order, stopping early if fn returns false.
func (e *Engine) IterPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(IoFailed, "store: iter_prefix: "+err.Error())
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Flush forces bbolt's pending writes to durable storage. bbolt syncs
// on every Update transaction by default, so this is a no-op sync
// fence kept for API parity with the storage engine's spec surface.
func (e *Engine) Flush() error {
	return e.db.Sync()
}

// Compact rewrites the database file into a fresh one with no
// free-list fragmentation, then swaps it into place. bbolt has no
// built-in online compaction, so this follows the copy-then-swap
// pattern: copy live pages into a new file, close both, rename.
func (e *Engine) Compact() error {
	tmpPath := e.path + ".compact"
	dst, err := bolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return storageErr(IoFailed, "store: compact open: "+err.Error())
	}
	if err := compactDB(dst, e.db); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return storageErr(IoFailed, "store: compact copy: "+err.Error())
	}
	if err := dst.Close(); err != nil {
		return storageErr(IoFailed, "store: compact close: "+err.Error())
	}
	if err := e.db.Close(); err != nil {
		return storageErr(IoFailed, "store: compact close source: "+err.Error())
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return storageErr(IoFailed, "store: compact rename: "+err.Error())
	}
	reopened, err := bolt.Open(e.path, 0o600, nil)
	if err != nil {
		return storageErr(Corrupted, "store: compact reopen: "+err.Error())
	}
	e.db = reopened
	return nil
}

func compactDB(dst, src *bolt.DB) error {
	return src.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			b, err := dstTx.CreateBucketIfNotExists(rootBucket)
			if err != nil {
				return err
			}
			return srcTx.Bucket(rootBucket).ForEach(func(k, v []byte) error {
				return b.Put(k, v)
			})
		})
	})
}
