// ABOUTME: Durable on-disk queue for payloads that arrived while storage was failing.
// ABOUTME: Backed by badger; entries replay in arrival order and are removed once stored.
package spool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/models"
)

var keyPrefix = []byte("payload/")

// DefaultInterval is how often Run retries spooled payloads.
const DefaultInterval = 30 * time.Second

// Spool holds raw payload bodies until they can be ingested.
type Spool struct {
	db  *badger.DB
	log *logger.Logger
}

// ReplayStats reports one replay pass.
type ReplayStats struct {
	Stored    int
	Dropped   int
	Remaining int
}

type entry struct {
	key  []byte
	body []byte
}

// Open opens or creates a spool in dir. An empty dir keeps the spool in memory.
func Open(dir string, log *logger.Logger) (*Spool, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "spool")

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spool %s: %w", dir, err)
	}
	return &Spool{db: db, log: log}, nil
}

// Close flushes and closes the spool.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Put stores body and returns its key.
func (s *Spool) Put(body []byte) (string, error) {
	id := ulid.Make().String()
	key := append(append([]byte{}, keyPrefix...), id...)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, bytes.Clone(body))
	})
	if err != nil {
		return "", fmt.Errorf("spool put: %w", err)
	}
	s.log.Warn("payload spooled", "key", id, "bytes", len(body))
	return id, nil
}

// Len counts spooled payloads.
func (s *Spool) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Spool) entries() ([]entry, error) {
	var out []entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			body, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, entry{key: item.KeyCopy(nil), body: body})
		}
		return nil
	})
	return out, err
}

func (s *Spool) remove(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Replay ingests spooled payloads oldest first. Stored and undecodable
// entries are removed. A storage fault stops the pass and leaves the
// remaining entries for the next one.
func (s *Spool) Replay(ctx context.Context, ingester ingest.Ingester) (ReplayStats, error) {
	var stats ReplayStats
	entries, err := s.entries()
	if err != nil {
		return stats, fmt.Errorf("spool read: %w", err)
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			stats.Remaining = len(entries) - i
			return stats, err
		}
		key := string(e.key[len(keyPrefix):])

		p, err := models.DecodePayload(bytes.NewReader(e.body))
		if err != nil {
			s.log.Warn("dropping undecodable payload", "key", key, "error", err)
			if err := s.remove(e.key); err != nil {
				return stats, fmt.Errorf("spool remove: %w", err)
			}
			stats.Dropped++
			continue
		}

		res, err := ingester.Ingest(ctx, p)
		if err != nil {
			if errors.Is(err, models.ErrInvalidPayload) {
				if err := s.remove(e.key); err != nil {
					return stats, fmt.Errorf("spool remove: %w", err)
				}
				stats.Dropped++
				continue
			}
			stats.Remaining = len(entries) - i
			return stats, err
		}

		if err := s.remove(e.key); err != nil {
			return stats, fmt.Errorf("spool remove: %w", err)
		}
		stats.Stored++
		s.log.Info("spooled payload stored", "key", key, "payload_id", res.PayloadID, "status", res.Status)
	}
	return stats, nil
}

// Run replays the spool every interval until ctx is cancelled.
func (s *Spool) Run(ctx context.Context, ingester ingest.Ingester, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, err := s.Replay(ctx, ingester)
			if err != nil && ctx.Err() == nil {
				s.log.Warn("spool replay incomplete", "stored", stats.Stored, "remaining", stats.Remaining, "error", err)
				continue
			}
			if stats.Stored > 0 || stats.Dropped > 0 {
				s.log.Info("spool replayed", "stored", stats.Stored, "dropped", stats.Dropped)
			}
		}
	}
}

type badgerLogger struct{ log *logger.Logger }

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.SugaredLogger.Errorf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.SugaredLogger.Warnf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.SugaredLogger.Debugf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.SugaredLogger.Debugf(format, args...)
}
