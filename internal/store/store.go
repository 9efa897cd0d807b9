package store

import (
	"errors"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
)

var (
	ErrAlreadyExists = errors.New("session already exists for token")
	ErrNotFound      = errors.New("session not found")
	ErrConflict      = errors.New("conflicting concurrent update")
)

// Store is the durable token -> signing-session mapping. Get returns a deep
// copy; Update serializes read-modify-write cycles on the same token while
// leaving operations on different tokens fully independent.
type Store interface {
	Create(token string, s *session.Session) error
	Get(token string) (*session.Session, error)
	Update(token string, mutate func(*session.Session) error) error
}
