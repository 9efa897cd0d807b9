package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"go.uber.org/zap"
)

// tokenLocks hands out one mutex per token so updates to the same session are
// serialized without a global lock across sessions.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *tokenLocks) forToken(token string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, exists := t.locks[token]
	if !exists {
		l = &sync.Mutex{}
		t.locks[token] = l
	}
	return l
}

// FileStore keeps one JSON record per token under dir. Creates use O_EXCL so
// a token can never be bound twice; updates go through a temp file, fsync and
// rename so a crash mid-write leaves the prior record intact.
type FileStore struct {
	dir    string
	locks  *tokenLocks
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		locks:  newTokenLocks(),
		logger: logger.With(zap.String("store", "file")),
	}, nil
}

func (fs *FileStore) path(token string) string {
	return filepath.Join(fs.dir, token+".json")
}

func (fs *FileStore) Create(token string, s *session.Session) error {
	lock := fs.locks.forToken(token)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(fs.path(token), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create session record: %w", err)
	}

	if err := writeRecord(f, s); err != nil {
		f.Close()
		os.Remove(fs.path(token))
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session record: %w", err)
	}

	fs.logger.Debug("session record created", zap.String("token", token))
	return nil
}

func (fs *FileStore) Get(token string) (*session.Session, error) {
	data, err := os.ReadFile(fs.path(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session record for token %s: %w", token, err)
	}
	return &s, nil
}

func (fs *FileStore) Update(token string, mutate func(*session.Session) error) error {
	lock := fs.locks.forToken(token)
	lock.Lock()
	defer lock.Unlock()

	s, err := fs.Get(token)
	if err != nil {
		return err
	}
	if err := mutate(s); err != nil {
		return err
	}

	tmp := fs.path(token) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	if err := writeRecord(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmp, fs.path(token)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session record: %w", err)
	}

	fs.logger.Debug("session record updated", zap.String("token", token))
	return nil
}

func writeRecord(f *os.File, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to flush session record: %w", err)
	}
	return nil
}
