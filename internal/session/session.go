package session

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusSigned    Status = "SIGNED"
)

// DefaultPhone is substituted when a webhook payload omits the phone field.
const DefaultPhone = "unspecified"

type Client struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (c Client) FullName() string {
	return c.FirstName + " " + c.LastName
}

// SignaturePosition describes where the webhook caller expects a signature.
// Placement is an opaque blob (page, coordinates, ...) passed through to the
// browser untouched.
type SignaturePosition struct {
	Index     int             `json:"index"`
	Placement json.RawMessage `json:"placement,omitempty"`
}

type Signature struct {
	Index     int             `json:"index"`
	ImagePath string          `json:"imagePath"`
	Position  json.RawMessage `json:"position,omitempty"`
}

// Session tracks one client's document from webhook arrival to the signed
// artifact. The token is immutable once minted and maps to exactly one
// session for its entire lifetime.
type Session struct {
	Token              string              `json:"token"`
	Client             Client              `json:"client"`
	DocumentPath       string              `json:"documentPath"`
	RequestedPositions []SignaturePosition `json:"requestedSignaturePositions,omitempty"`
	Status             Status              `json:"status"`
	Signatures         []Signature         `json:"signatures,omitempty"`
	FinalDocumentPath  string              `json:"finalDocumentPath,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	SignedAt           *time.Time          `json:"signedAt,omitempty"`
}

// Clone returns a deep copy so callers can never mutate a store's backing
// state through a returned session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.RequestedPositions != nil {
		out.RequestedPositions = make([]SignaturePosition, len(s.RequestedPositions))
		for i, p := range s.RequestedPositions {
			out.RequestedPositions[i] = SignaturePosition{
				Index:     p.Index,
				Placement: append(json.RawMessage(nil), p.Placement...),
			}
		}
	}
	if s.Signatures != nil {
		out.Signatures = make([]Signature, len(s.Signatures))
		for i, sig := range s.Signatures {
			out.Signatures[i] = Signature{
				Index:     sig.Index,
				ImagePath: sig.ImagePath,
				Position:  append(json.RawMessage(nil), sig.Position...),
			}
		}
	}
	if s.SignedAt != nil {
		t := *s.SignedAt
		out.SignedAt = &t
	}
	return &out
}

// AllowsIndex reports whether a submitted signature index is acceptable.
// An empty requested set leaves indices unbounded.
func (s *Session) AllowsIndex(index int) bool {
	if len(s.RequestedPositions) == 0 {
		return true
	}
	for _, p := range s.RequestedPositions {
		if p.Index == index {
			return true
		}
	}
	return false
}
