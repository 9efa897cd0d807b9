package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/events"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/signing"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/store"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/metrics"
	"go.uber.org/zap"
)

// DocumentFetcher retrieves the contract PDF bytes; the network is an
// external collaborator behind this interface.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type SessionServiceConfig struct {
	TokenSecret string
	DataDir     string
	// DefaultDocumentURL is used when a webhook omits pdfUrl.
	DefaultDocumentURL string
	// PublicURL prefixes the redirect link handed back to the webhook caller.
	PublicURL string
}

// SessionService drives a signing session from webhook arrival through
// delivery to the terminal SIGNED state.
type SessionService struct {
	cfg       SessionServiceConfig
	store     store.Store
	fetcher   DocumentFetcher
	finalizer Finalizer
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *metrics.MetricsCollector
	now       func() time.Time
}

type WebhookRequest struct {
	FirstName          string                      `json:"firstName"`
	LastName           string                      `json:"lastName"`
	Email              string                      `json:"email"`
	Phone              string                      `json:"phone"`
	PDFURL             string                      `json:"pdfUrl"`
	SignaturePositions []session.SignaturePosition `json:"signaturePositions"`
}

type SubmissionEntry struct {
	Image    string          `json:"image"`
	Index    int             `json:"index"`
	Position json.RawMessage `json:"position,omitempty"`
}

type SubmissionResult struct {
	Client   session.Client
	Accepted int
	Skipped  int
}

func NewSessionService(
	cfg SessionServiceConfig,
	sessionStore store.Store,
	fetcher DocumentFetcher,
	finalizer Finalizer,
	publisher events.Publisher,
	logger *zap.Logger,
	collector *metrics.MetricsCollector,
) *SessionService {
	return &SessionService{
		cfg:       cfg,
		store:     sessionStore,
		fetcher:   fetcher,
		finalizer: finalizer,
		publisher: publisher,
		logger:    logger.With(zap.String("service", "session_service")),
		metrics:   collector,
		now:       time.Now,
	}
}

func (ss *SessionService) collectMetrics(ctx context.Context, fn func()) {
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
			fn()
		}
	}()
}

// CreateFromWebhook turns an anonymous webhook payload into a durable
// PENDING session and returns its token together with the redirect URL the
// caller forwards to the signer's browser.
func (ss *SessionService) CreateFromWebhook(ctx context.Context, req WebhookRequest) (token, redirectURL string, err error) {
	start := ss.now()

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
		{"email", req.Email},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("%w: missing %s", session.ErrIncompleteData, strings.Join(missing, ", "))
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = session.DefaultPhone
	}

	docURL := strings.TrimSpace(req.PDFURL)
	if docURL == "" {
		docURL = ss.cfg.DefaultDocumentURL
		if docURL == "" {
			return "", "", fmt.Errorf("%w: no document URL supplied and no default configured", session.ErrDocumentFetchFailed)
		}
		ss.logger.Info("no document URL supplied, using default")
	}

	fetchStart := ss.now()
	content, err := ss.fetcher.Fetch(ctx, docURL)
	if err != nil {
		ss.logger.Warn("document fetch failed", zap.String("url", docURL), zap.Error(err))
		return "", "", err
	}
	ss.collectMetrics(ctx, func() {
		ss.metrics.ObserveLatency("document_fetch", time.Since(fetchStart))
		ss.metrics.ObserveSize("document_size", float64(len(content)))
	})

	createdAt := start
	docName := fmt.Sprintf("%s_%s_%s.pdf",
		signing.DocumentTimestamp(createdAt), sanitizeNamePart(req.FirstName), sanitizeNamePart(req.LastName))
	docPath := filepath.Join(ss.cfg.DataDir, docName)
	if err := writeFileSync(docPath, content); err != nil {
		ss.logger.Error("failed to store fetched document", zap.Error(err))
		return "", "", fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	token = signing.MintToken(ss.cfg.TokenSecret, createdAt, req.FirstName, req.LastName)

	s := &session.Session{
		Token: token,
		Client: session.Client{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     phone,
		},
		DocumentPath:       docPath,
		RequestedPositions: req.SignaturePositions,
		Status:             session.StatusPending,
		CreatedAt:          createdAt,
	}

	if err := ss.store.Create(token, s); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Same-instant webhook for the same name: a documented
			// collision of the truncated token, surfaced to the caller.
			ss.logger.Warn("token collision on create", zap.String("token", token))
			return "", "", err
		}
		ss.logger.Error("failed to persist session", zap.Error(err))
		return "", "", fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	ss.publish(events.SessionEvent{
		Type:       events.EventSessionCreated,
		Token:      token,
		ClientName: s.Client.FullName(),
		OccurredAt: createdAt,
	})

	ss.collectMetrics(ctx, func() {
		ss.metrics.IncrementCounter("sessions_created", nil)
		ss.metrics.ObserveLatency("webhook_create", time.Since(start))
	})

	ss.logger.Info("session created",
		zap.String("token", token),
		zap.String("client", s.Client.FullName()))

	return token, ss.cfg.PublicURL + "/signature/" + token, nil
}

// Resolve loads the session for a browser visit and marks it DELIVERED on
// first contact. Repeat visits and visits to SIGNED sessions resolve
// read-only; a session is never exposed without a resolvable document.
func (ss *SessionService) Resolve(ctx context.Context, rawToken string) (*session.Session, error) {
	token, err := signing.ResolveToken(rawToken)
	if err != nil {
		return nil, err
	}

	s, err := ss.store.Get(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, session.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	if _, err := os.Stat(s.DocumentPath); err != nil {
		ss.logger.Warn("session document missing on disk",
			zap.String("token", token),
			zap.String("path", s.DocumentPath))
		return nil, session.ErrDocumentMissing
	}

	if s.Status == session.StatusPending {
		err := ss.store.Update(token, func(cur *session.Session) error {
			if cur.Status == session.StatusPending {
				cur.Status = session.StatusDelivered
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
		}
		s.Status = session.StatusDelivered
		ss.collectMetrics(ctx, func() {
			ss.metrics.IncrementCounter("sessions_resolved", nil)
		})
	}

	return s, nil
}

// Document returns the on-disk path of the source PDF for streaming to the
// signer's browser.
func (ss *SessionService) Document(ctx context.Context, rawToken string) (string, error) {
	token, err := signing.ResolveToken(rawToken)
	if err != nil {
		return "", err
	}

	s, err := ss.store.Get(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", session.ErrInvalidToken
		}
		return "", fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	if _, err := os.Stat(s.DocumentPath); err != nil {
		return "", session.ErrDocumentMissing
	}
	return s.DocumentPath, nil
}

// Submit records the signature batch and finalizes the session. Malformed
// entries are skipped rather than failing the batch, but at least one entry
// must decode; an out-of-bounds index rejects the whole submission. The
// DELIVERED -> SIGNED transition happens at most once per token.
func (ss *SessionService) Submit(ctx context.Context, rawToken string, entries []SubmissionEntry) (*SubmissionResult, error) {
	start := ss.now()

	token, err := signing.ResolveToken(rawToken)
	if err != nil {
		return nil, err
	}

	s, err := ss.store.Get(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, session.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	if s.Status == session.StatusSigned {
		return nil, session.ErrAlreadySigned
	}
	if len(entries) == 0 {
		return nil, session.ErrMissingSignature
	}
	if _, err := os.Stat(s.DocumentPath); err != nil {
		return nil, session.ErrDocumentMissing
	}

	for _, entry := range entries {
		if !s.AllowsIndex(entry.Index) {
			return nil, fmt.Errorf("%w: index %d not requested", session.ErrInvalidPosition, entry.Index)
		}
	}

	var accepted []session.Signature
	skipped := 0
	for _, entry := range entries {
		raw, err := signing.DecodeSignatureImage(entry.Image)
		if err != nil {
			ss.logger.Warn("skipping malformed signature entry",
				zap.String("token", token),
				zap.Int("index", entry.Index),
				zap.Error(err))
			skipped++
			continue
		}

		imagePath := filepath.Join(ss.cfg.DataDir, fmt.Sprintf("signature_%s_%d.png", token, entry.Index))
		if err := writeFileSync(imagePath, raw); err != nil {
			ss.logger.Error("failed to store signature image", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
		}
		ss.collectMetrics(ctx, func() {
			ss.metrics.ObserveSize("signature_size", float64(len(raw)))
		})

		accepted = append(accepted, session.Signature{
			Index:     entry.Index,
			ImagePath: imagePath,
			Position:  entry.Position,
		})
	}

	if len(accepted) == 0 {
		return nil, session.ErrMissingSignature
	}

	finalPath := filepath.Join(ss.cfg.DataDir, fmt.Sprintf("contrat-%s.pdf", token))
	if err := ss.finalizer.Finalize(ctx, s.DocumentPath, accepted, finalPath); err != nil {
		ss.logger.Error("finalize failed", zap.String("token", token), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	signedAt := ss.now()
	err = ss.store.Update(token, func(cur *session.Session) error {
		if cur.Status == session.StatusSigned {
			return session.ErrAlreadySigned
		}
		cur.Signatures = append(cur.Signatures, accepted...)
		cur.FinalDocumentPath = finalPath
		cur.Status = session.StatusSigned
		cur.SignedAt = &signedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrAlreadySigned) {
			return nil, session.ErrAlreadySigned
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStorageFailure, err)
	}

	ss.publish(events.SessionEvent{
		Type:       events.EventSessionSigned,
		Token:      token,
		ClientName: s.Client.FullName(),
		OccurredAt: signedAt,
	})

	ss.collectMetrics(ctx, func() {
		ss.metrics.IncrementCounter("sessions_signed", nil)
		for range accepted {
			ss.metrics.IncrementCounter("signatures_recorded", nil)
		}
		for i := 0; i < skipped; i++ {
			ss.metrics.IncrementCounter("signatures_skipped", nil)
		}
		ss.metrics.ObserveLatency("session_finalize", time.Since(start))
	})

	ss.logger.Info("session signed",
		zap.String("token", token),
		zap.String("client", s.Client.FullName()),
		zap.Int("accepted", len(accepted)),
		zap.Int("skipped", skipped))

	return &SubmissionResult{
		Client:   s.Client,
		Accepted: len(accepted),
		Skipped:  skipped,
	}, nil
}

func (ss *SessionService) publish(event events.SessionEvent) {
	if err := ss.publisher.Publish(event); err != nil {
		ss.logger.Warn("event publish failed",
			zap.String("type", event.Type),
			zap.String("token", event.Token),
			zap.Error(err))
	}
}

// sanitizeNamePart keeps client names from smuggling path separators into
// the document filename.
func sanitizeNamePart(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
