package signing

import (
	"encoding/base64"
	"strings"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
)

// DecodeSignatureImage turns a browser-submitted signature payload into raw
// image bytes. Canvas exports arrive as data URLs ("data:image/png;base64,..."),
// so any marker prefix is stripped before decoding.
func DecodeSignatureImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, session.ErrMissingSignature
	}

	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, session.ErrInvalidSignatureEncoding
		}
		payload = payload[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, session.ErrInvalidSignatureEncoding
	}
	if len(raw) == 0 {
		return nil, session.ErrInvalidSignatureEncoding
	}
	return raw, nil
}
