package models

import (
	"time"

	"gorm.io/gorm"
)

// SigningSession is the row-per-token representation used by the database
// backed store. Position and signature lists are stored as JSON blobs since
// they are opaque to the persistence layer.
type SigningSession struct {
	gorm.Model
	Token              string `gorm:"uniqueIndex;size:32;not null"`
	FirstName          string `gorm:"not null"`
	LastName           string `gorm:"not null"`
	Email              string `gorm:"not null"`
	Phone              string
	DocumentPath       string `gorm:"not null"`
	RequestedPositions string `gorm:"type:json"`
	Status             string `gorm:"not null;default:'PENDING'"`
	Signatures         string `gorm:"type:json"`
	FinalDocumentPath  string
	SignedAt           *time.Time
}
