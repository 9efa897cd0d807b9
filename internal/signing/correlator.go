package signing

import (
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
)

// ResolveToken answers which session an incoming browser request belongs to.
// The token travels explicitly in the URL, so resolution is a pure function
// of the request: no address-keyed maps, no server-side cookie state. Those
// correlation strategies collide for concurrent signers behind one address
// and are deliberately not implemented.
func ResolveToken(raw string) (string, error) {
	if len(raw) != TokenLength {
		return "", session.ErrInvalidToken
	}
	for _, r := range raw {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", session.ErrInvalidToken
		}
	}
	return raw, nil
}
