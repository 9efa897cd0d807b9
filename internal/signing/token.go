package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenLength is 12 hex characters (48 bits). Guessing a token only exposes
// one signer's own contract metadata, so the width trades hardness for short
// URLs; same-instant webhooks for the same name are a documented collision
// that surfaces as ErrAlreadyExists on create.
const TokenLength = 12

const timestampLayout = "20060102150405"

// MintToken derives the session token from the signer identity and arrival
// time, keyed with the externally supplied server secret. Deterministic for
// identical inputs in the same instant, practically unguessable otherwise.
func MintToken(secret string, at time.Time, firstName, lastName string) string {
	base := fmt.Sprintf("%s_%s_%s", at.Format(timestampLayout), firstName, lastName)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))[:TokenLength]
}

// DocumentTimestamp names the fetched source PDF the same way the token base
// is built, keeping one document file per session.
func DocumentTimestamp(at time.Time) string {
	return at.Format(timestampLayout)
}
