package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
)

// Finalizer produces the terminal signed artifact from the source document
// and the recorded signatures. It is a substitution point: the state machine
// and store contracts do not change when a real PDF compositor replaces the
// copy-through policy.
type Finalizer interface {
	Finalize(ctx context.Context, documentPath string, signatures []session.Signature, outputPath string) error
}

// CopyFinalizer writes a byte-identical copy of the source document. The
// signature images live next to it on disk; compositing them into the PDF is
// left to a future Finalizer implementation.
type CopyFinalizer struct{}

func (CopyFinalizer) Finalize(ctx context.Context, documentPath string, signatures []session.Signature, outputPath string) error {
	src, err := os.Open(documentPath)
	if err != nil {
		return fmt.Errorf("failed to open source document: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create final document: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(outputPath)
		return fmt.Errorf("failed to write final document: %w", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return fmt.Errorf("failed to flush final document: %w", err)
	}
	return dst.Close()
}
