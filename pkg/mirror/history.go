package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Entry records the last mirrored version of one remote file. A file
// whose size and listed mtime both match its entry is skipped on the
// next run.
type Entry struct {
	// Size is the remote size at mirror time
	Size int64 `json:"size"`

	// MTime is the remote modification time as the listing reported it
	MTime time.Time `json:"mtime"`

	// MirroredAt is when the copy happened
	MirroredAt time.Time `json:"mirrored_at"`
}

// History is the persistent transfer history backing incremental mirror
// runs. Entries are keyed by task name and remote path, so tasks never
// see each other's state.
//
// Thread Safety:
// BadgerDB transactions make the store safe for concurrent use from
// multiple goroutines.
type History struct {
	db *badger.DB
}

// OpenHistory opens (or creates) the history database in the given
// directory.
func OpenHistory(path string) (*History, error) {
	// The history holds one small JSON value per mirrored file, so the
	// default caches are oversized for it.
	opts := badger.DefaultOptions(path)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithBlockCacheSize(8 << 20)
	opts = opts.WithIndexCacheSize(8 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", path, err)
	}
	return &History{db: db}, nil
}

// Close closes the history database. After Close the history must not
// be used.
func (h *History) Close() error {
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// Get returns the entry for a remote path within a task, or nil if the
// file has never been mirrored.
func (h *History) Get(task, path string) (*Entry, error) {
	var entry *Entry

	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(historyKey(task, path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("corrupt history entry for %s: %w", path, err)
			}
			entry = &e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Put stores the entry for a remote path within a task.
func (h *History) Put(task, path string, entry *Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(task, path), val)
	})
}

// Forget drops all entries of a task, forcing its next run to copy
// everything again.
func (h *History) Forget(task string) error {
	prefix := historyPrefix(task)
	return h.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// historyKey builds the database key for one task/path pair. The NUL
// separator cannot appear in task names or FTP paths, so keys never
// collide across tasks.
func historyKey(task, path string) []byte {
	return append(historyPrefix(task), []byte(path)...)
}

// historyPrefix is the key prefix shared by all entries of a task.
func historyPrefix(task string) []byte {
	return []byte("history\x00" + task + "\x00")
}
