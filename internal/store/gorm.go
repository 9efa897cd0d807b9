package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/db/models"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps one row per token. Uniqueness rides on the token's unique
// index; per-token serialization rides on a transaction with a row lock, so
// it is safe under concurrent access from independent processes.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormStore(database *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     database,
		logger: logger.With(zap.String("store", "gorm")),
	}
}

func (gs *GormStore) Create(token string, s *session.Session) error {
	row, err := toRow(s)
	if err != nil {
		return err
	}

	var count int64
	if err := gs.db.Model(&models.SigningSession{}).
		Where("token = ?", token).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check token uniqueness: %w", err)
	}
	if count > 0 {
		return ErrAlreadyExists
	}

	if err := gs.db.Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create session row: %w", err)
	}

	gs.logger.Debug("session row created", zap.String("token", token))
	return nil
}

func (gs *GormStore) Get(token string) (*session.Session, error) {
	var row models.SigningSession
	if err := gs.db.First(&row, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session row: %w", err)
	}
	return fromRow(&row)
}

func (gs *GormStore) Update(token string, mutate func(*session.Session) error) error {
	return gs.db.Transaction(func(tx *gorm.DB) error {
		var row models.SigningSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock session row: %w", err)
		}

		s, err := fromRow(&row)
		if err != nil {
			return err
		}
		if err := mutate(s); err != nil {
			return err
		}

		updated, err := toRow(s)
		if err != nil {
			return err
		}
		updated.ID = row.ID
		updated.CreatedAt = row.CreatedAt

		if err := tx.Save(updated).Error; err != nil {
			return fmt.Errorf("failed to save session row: %w", err)
		}
		return nil
	})
}

func toRow(s *session.Session) (*models.SigningSession, error) {
	positions, err := json.Marshal(s.RequestedPositions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode positions: %w", err)
	}
	signatures, err := json.Marshal(s.Signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signatures: %w", err)
	}

	return &models.SigningSession{
		Model:              gorm.Model{CreatedAt: s.CreatedAt},
		Token:              s.Token,
		FirstName:          s.Client.FirstName,
		LastName:           s.Client.LastName,
		Email:              s.Client.Email,
		Phone:              s.Client.Phone,
		DocumentPath:       s.DocumentPath,
		RequestedPositions: string(positions),
		Status:             string(s.Status),
		Signatures:         string(signatures),
		FinalDocumentPath:  s.FinalDocumentPath,
		SignedAt:           s.SignedAt,
	}, nil
}

func fromRow(row *models.SigningSession) (*session.Session, error) {
	s := &session.Session{
		Token: row.Token,
		Client: session.Client{
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Email:     row.Email,
			Phone:     row.Phone,
		},
		DocumentPath:      row.DocumentPath,
		Status:            session.Status(row.Status),
		FinalDocumentPath: row.FinalDocumentPath,
		CreatedAt:         row.CreatedAt,
		SignedAt:          row.SignedAt,
	}

	if row.RequestedPositions != "" && row.RequestedPositions != "null" {
		if err := json.Unmarshal([]byte(row.RequestedPositions), &s.RequestedPositions); err != nil {
			return nil, fmt.Errorf("corrupt positions for token %s: %w", row.Token, err)
		}
	}
	if row.Signatures != "" && row.Signatures != "null" {
		if err := json.Unmarshal([]byte(row.Signatures), &s.Signatures); err != nil {
			return nil, fmt.Errorf("corrupt signatures for token %s: %w", row.Token, err)
		}
	}
	return s, nil
}
