package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mymapsapp/mymaps-server/internal/errors"
)

const sessionPrefix = "session:"

// Store persists sessions in badger. Entries expire on their own after the TTL.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenStore opens a session store at path. An empty path keeps everything in memory.
func OpenStore(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	logger.Info("session store opened", "path", path, "ttl", ttl)
	return &Store{db: db, ttl: ttl, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put saves sess and restarts its TTL.
func (s *Store) Put(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(sessionPrefix+sess.ID), data).WithTTL(s.ttl))
	})
}

// Get returns the session with the given id. Missing or expired sessions are
// Unauthorized.
func (s *Store) Get(_ context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Unauthorized("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}


// CollectGarbage rewrites value log files that expired sessions left mostly empty. It
// returns how many files were rewritten. In-memory stores have nothing to collect.
func (s *Store) CollectGarbage() (int, error) {
	if s.db.Opts().InMemory {
		return 0, nil
	}
	n := 0
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("session value log gc: %w", err)
		}
		n++
	}
}
