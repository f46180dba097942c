// Package queue implements the durable ingestion log on BadgerDB.
//
// Each session is an append-only sequence of chunk records under its own key
// prefix. The log carries no acks and no redelivery bookkeeping: consumers
// track their own position and may re-read entries after a restart, so
// downstream writes must be idempotent. Sessions expire after a TTL, after
// which reads return nothing even if consumption never finished.
package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
)

const (
	entryPrefix = "chlog"
	metaPrefix  = "chmeta"
	seqPrefix   = "chseq"

	sequenceBandwidth   = 100
	defaultPollInterval = 50 * time.Millisecond
)

// DefaultTTL is how long a session stays readable after creation.
const DefaultTTL = time.Hour

// Log is a badger-backed core.ChunkQueue.
type Log struct {
	db           *badger.DB
	logger       *slog.Logger
	ttl          time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	seqs    map[string]*badger.Sequence
	stamped map[string]struct{}
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (or creates) the queue database at path. An empty path opens an
// in-memory instance, used by tests.
func Open(path string, ttl time.Duration) (*Log, error) {
	var opts badger.Options

	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("queue dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Log{
		db:           db,
		logger:       slog.Default().With("component", "chunk-queue"),
		ttl:          ttl,
		pollInterval: defaultPollInterval,
		seqs:         make(map[string]*badger.Sequence),
		stamped:      make(map[string]struct{}),
	}, nil
}

// Close releases all sequences and closes the database.
func (l *Log) Close() error {
	l.mu.Lock()
	for _, s := range l.seqs {
		_ = s.Release()
	}
	l.seqs = make(map[string]*badger.Sequence)
	l.stamped = make(map[string]struct{})
	l.mu.Unlock()
	return l.db.Close()
}

func entryKey(session string, id uint64) []byte {
	prefix := []byte(entryPrefix + ":" + session + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// BigEndian so lexicographic key order matches numeric ID order.
	binary.BigEndian.PutUint64(buf[offset:], id)
	return buf
}

func sessionPrefix(session string) []byte {
	return []byte(entryPrefix + ":" + session + ":")
}

func metaKey(session string) []byte {
	return []byte(metaPrefix + ":" + session)
}

func (l *Log) sequence(session string) (*badger.Sequence, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.seqs[session]; ok {
		return s, nil
	}
	s, err := l.db.GetSequence([]byte(seqPrefix+":"+session), sequenceBandwidth)
	if err != nil {
		return nil, err
	}
	l.seqs[session] = s
	return s, nil
}

// ensureSession stamps the session's expiry deadline if it has none yet. The
// stamp is a blind write in its own transaction so that racing first appends
// never read-conflict under badger's optimistic concurrency; every writer
// computes the same now+ttl deadline, so a double stamp is harmless.
func (l *Log) ensureSession(session string) error {
	l.mu.Lock()
	_, done := l.stamped[session]
	l.mu.Unlock()
	if done {
		return nil
	}

	exists := false
	err := l.db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(metaKey(session))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return err
	}

	if !exists {
		err = l.db.Update(func(tx *badger.Txn) error {
			deadline := make([]byte, 8)
			binary.BigEndian.PutUint64(deadline, uint64(time.Now().Add(l.ttl).UnixNano()))
			return tx.SetEntry(badger.NewEntry(metaKey(session), deadline).WithTTL(l.ttl))
		})
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.stamped[session] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Append adds one record to the session log. The first append stamps the
// session's expiry deadline; entries themselves carry the same TTL so badger
// garbage-collects them. Entry writes are blind (each key is written exactly
// once), so concurrent producers on one session cannot conflict.
func (l *Log) Append(ctx context.Context, sessionKey string, record map[string]string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := l.ensureSession(sessionKey); err != nil {
		return 0, fmt.Errorf("stamp session deadline: %w", err)
	}

	seq, err := l.sequence(sessionKey)
	if err != nil {
		return 0, fmt.Errorf("session sequence: %w", err)
	}
	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next sequence id: %w", err)
	}
	id := n + 1 // IDs start at 1 so afterID=0 reads from the beginning.

	value, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	err = l.db.Update(func(tx *badger.Txn) error {
		e := badger.NewEntry(entryKey(sessionKey, id), value).WithTTL(l.ttl)
		return tx.SetEntry(e)
	})
	if err != nil {
		return 0, fmt.Errorf("append entry %d: %w", id, err)
	}
	return id, nil
}

// expired reports whether the session is past its deadline or unknown.
func (l *Log) expired(tx *badger.Txn, session string) bool {
	item, err := tx.Get(metaKey(session))
	if err != nil {
		return true
	}
	var deadline uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("bad deadline value")
		}
		deadline = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return true
	}
	return time.Now().UnixNano() >= int64(deadline)
}

// Read returns up to count entries after afterID, blocking up to block for
// new data. An empty result means either drained or expired; the two are
// indistinguishable here, which is why consumers compute totals up front.
func (l *Log) Read(ctx context.Context, sessionKey string, afterID uint64, count int, block time.Duration) ([]core.QueueEntry, error) {
	if count <= 0 {
		return nil, fmt.Errorf("read count must be positive, got %d", count)
	}

	waitUntil := time.Now().Add(block)
	for {
		entries, err := l.readOnce(sessionKey, afterID, count)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}
		if time.Now().After(waitUntil) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *Log) readOnce(session string, afterID uint64, count int) ([]core.QueueEntry, error) {
	var out []core.QueueEntry
	err := l.db.View(func(tx *badger.Txn) error {
		if l.expired(tx, session) {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(session)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(entryKey(session, afterID+1)); it.Valid() && len(out) < count; it.Next() {
			item := it.Item()
			key := item.Key()
			id := binary.BigEndian.Uint64(key[len(key)-8:])

			var record map[string]string
			err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &record)
			})
			if err != nil {
				return fmt.Errorf("decode entry %d: %w", id, err)
			}
			out = append(out, core.QueueEntry{ID: id, Record: record})
		}
		return nil
	})
	return out, err
}

// Expire resets the session deadline to now+ttl. A non-positive ttl expires
// the session immediately.
func (l *Log) Expire(ctx context.Context, sessionKey string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(tx *badger.Txn) error {
		deadline := make([]byte, 8)
		binary.BigEndian.PutUint64(deadline, uint64(time.Now().Add(ttl).UnixNano()))
		e := badger.NewEntry(metaKey(sessionKey), deadline)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return tx.SetEntry(e)
	})
}

// Len counts the session's entries. Expired sessions report zero.
func (l *Log) Len(ctx context.Context, sessionKey string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := l.db.View(func(tx *badger.Txn) error {
		if l.expired(tx, sessionKey) {
			return nil
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix(sessionKey)
		opts.PrefetchValues = false
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

var _ core.ChunkQueue = (*Log)(nil)
