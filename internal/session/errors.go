package session

import "errors"

// Request-boundary error taxonomy. Every one of these maps to a structured
// {status:"error", message} response; none should crash the process.
var (
	ErrIncompleteData           = errors.New("incomplete client data")
	ErrDocumentFetchFailed      = errors.New("document fetch failed")
	ErrStorageFailure           = errors.New("storage failure")
	ErrInvalidToken             = errors.New("invalid or expired token")
	ErrDocumentMissing          = errors.New("document not available")
	ErrMissingSignature         = errors.New("missing signature data")
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")
	ErrInvalidPosition          = errors.New("invalid signature position")
	ErrAlreadySigned            = errors.New("session already signed")
)
