package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"go.uber.org/zap"
)

const maxDocumentBytes = 32 << 20 // 32 MiB

// Fetcher retrieves contract PDFs over HTTP with a bounded timeout. One
// retry on transport errors only; a non-200 is treated as a definitive
// answer from the remote and not retried.
type Fetcher struct {
	client *http.Client
	retry  bool
	logger *zap.Logger
}

func NewFetcher(timeout time.Duration, retry bool, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		retry:  retry,
		logger: logger.With(zap.String("component", "fetcher")),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := f.fetchOnce(ctx, url)
	if err == nil {
		return data, nil
	}

	var statusErr *StatusError
	if f.retry && !errors.As(err, &statusErr) && ctx.Err() == nil {
		f.logger.Warn("document fetch failed, retrying once", zap.String("url", url), zap.Error(err))
		return f.fetchOnce(ctx, url)
	}
	return nil, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDocumentFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDocumentFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDocumentFetchFailed, err)
	}
	return data, nil
}

// StatusError reports a non-200 answer from the document host.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("document fetch failed (code: %d)", e.Code)
}

func (e *StatusError) Unwrap() error {
	return session.ErrDocumentFetchFailed
}
