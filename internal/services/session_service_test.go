package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/events"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/store"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stubPDF = "%PD"

func newTestEnv(t *testing.T) (*SessionService, *store.FileStore, string, *httptest.Server) {
	t.Helper()

	dir := t.TempDir()
	fileStore, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(stubPDF))
	}))
	t.Cleanup(srv.Close)

	svc := NewSessionService(
		SessionServiceConfig{
			TokenSecret: "test-secret",
			DataDir:     dir,
			PublicURL:   "http://sign.example.com",
		},
		fileStore,
		&stubFetcher{},
		CopyFinalizer{},
		events.NopPublisher{},
		zap.NewNop(),
		metrics.NewMetricsCollector(),
	)
	return svc, fileStore, dir, srv
}

// stubFetcher proxies to a per-test HTTP client so the fetch collaborator
// stays an opaque bytes-or-error call.
type stubFetcher struct {
	err error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, session.ErrDocumentFetchFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, session.ErrDocumentFetchFailed
	}
	return io.ReadAll(resp.Body)
}

func anaWebhook(pdfURL string) WebhookRequest {
	return WebhookRequest{
		FirstName: "Ana",
		LastName:  "Diaz",
		Email:     "a@x.com",
		PDFURL:    pdfURL,
	}
}

func encodedSignature(content string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(content))
}

func TestCreateFromWebhook(t *testing.T) {
	t.Run("create then resolve round trip with phone sentinel", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)

		token, redirectURL, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.NoError(t, err)
		require.Len(t, token, 12)
		require.Equal(t, "http://sign.example.com/signature/"+token, redirectURL)

		s, err := svc.Resolve(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, session.Client{
			FirstName: "Ana",
			LastName:  "Diaz",
			Email:     "a@x.com",
			Phone:     session.DefaultPhone,
		}, s.Client)
		require.Equal(t, session.StatusDelivered, s.Status)

		doc, err := os.ReadFile(s.DocumentPath)
		require.NoError(t, err)
		require.Equal(t, []byte(stubPDF), doc)
	})

	t.Run("missing required fields", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)

		req := anaWebhook(srv.URL)
		req.LastName = ""
		req.Email = ""
		_, _, err := svc.CreateFromWebhook(context.Background(), req)
		require.ErrorIs(t, err, session.ErrIncompleteData)
		require.Contains(t, err.Error(), "lastName")
		require.Contains(t, err.Error(), "email")
	})

	t.Run("fetch failure", func(t *testing.T) {
		svc, _, _, _ := newTestEnv(t)
		svc.fetcher = &stubFetcher{err: session.ErrDocumentFetchFailed}

		_, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook("http://doc.example.com/c.pdf"))
		require.ErrorIs(t, err, session.ErrDocumentFetchFailed)
	})

	t.Run("no document URL and no default", func(t *testing.T) {
		svc, _, _, _ := newTestEnv(t)

		_, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(""))
		require.ErrorIs(t, err, session.ErrDocumentFetchFailed)
	})

	t.Run("same-instant identical webhooks collide on create", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)
		instant := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
		svc.now = func() time.Time { return instant }

		_, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.NoError(t, err)

		_, _, err = svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("distinct identities mint distinct tokens", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)
		instant := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
		svc.now = func() time.Time { return instant }

		tokenA, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.NoError(t, err)

		req := anaWebhook(srv.URL)
		req.FirstName = "Bob"
		tokenB, _, err := svc.CreateFromWebhook(context.Background(), req)
		require.NoError(t, err)
		require.NotEqual(t, tokenA, tokenB)
	})
}

func TestResolve(t *testing.T) {
	t.Run("unknown token has no side effects", func(t *testing.T) {
		svc, _, dir, _ := newTestEnv(t)

		_, err := svc.Resolve(context.Background(), "0123456789ab")
		require.ErrorIs(t, err, session.ErrInvalidToken)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries, "resolution must never create a session")
	})

	t.Run("malformed token", func(t *testing.T) {
		svc, _, _, _ := newTestEnv(t)

		_, err := svc.Resolve(context.Background(), "not-a-token")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("document deleted from disk", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)

		token, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.NoError(t, err)

		s, err := svc.Resolve(context.Background(), token)
		require.NoError(t, err)
		require.NoError(t, os.Remove(s.DocumentPath))

		_, err = svc.Resolve(context.Background(), token)
		require.ErrorIs(t, err, session.ErrDocumentMissing)
	})

	t.Run("repeat visits stay resolvable", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)

		token, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			s, err := svc.Resolve(context.Background(), token)
			require.NoError(t, err)
			require.Equal(t, session.StatusDelivered, s.Status)
		}
	})
}

func TestSubmit(t *testing.T) {
	createDelivered := func(t *testing.T, svc *SessionService, srvURL string, positions []session.SignaturePosition) string {
		t.Helper()
		req := anaWebhook(srvURL)
		req.SignaturePositions = positions
		token, _, err := svc.CreateFromWebhook(context.Background(), req)
		require.NoError(t, err)
		_, err = svc.Resolve(context.Background(), token)
		require.NoError(t, err)
		return token
	}

	t.Run("single signature finalizes the session", func(t *testing.T) {
		svc, fileStore, dir, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, nil)

		result, err := svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: encodedSignature("sig-bytes"), Index: 0},
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.Accepted)
		require.Equal(t, 0, result.Skipped)
		require.Equal(t, "Ana Diaz", result.Client.FullName())

		s, err := fileStore.Get(token)
		require.NoError(t, err)
		require.Equal(t, session.StatusSigned, s.Status)
		require.Len(t, s.Signatures, 1)
		require.NotNil(t, s.SignedAt)

		img, err := os.ReadFile(filepath.Join(dir, "signature_"+token+"_0.png"))
		require.NoError(t, err)
		require.Equal(t, []byte("sig-bytes"), img)

		final, err := os.ReadFile(s.FinalDocumentPath)
		require.NoError(t, err)
		require.Equal(t, []byte(stubPDF), final, "copy-through finalizer keeps bytes identical")
	})

	t.Run("signed sessions reject further submits without mutation", func(t *testing.T) {
		svc, fileStore, _, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, nil)

		_, err := svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: encodedSignature("first"), Index: 0},
		})
		require.NoError(t, err)

		before, err := fileStore.Get(token)
		require.NoError(t, err)
		finalBefore, err := os.ReadFile(before.FinalDocumentPath)
		require.NoError(t, err)

		_, err = svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: encodedSignature("second"), Index: 1},
		})
		require.ErrorIs(t, err, session.ErrAlreadySigned)

		after, err := fileStore.Get(token)
		require.NoError(t, err)
		require.Equal(t, before.Signatures, after.Signatures)
		require.Equal(t, before.FinalDocumentPath, after.FinalDocumentPath)

		finalAfter, err := os.ReadFile(after.FinalDocumentPath)
		require.NoError(t, err)
		require.Equal(t, finalBefore, finalAfter)
	})

	t.Run("batch skips malformed entries but records the rest", func(t *testing.T) {
		svc, fileStore, _, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, nil)

		result, err := svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: encodedSignature("one"), Index: 0},
			{Image: "data:image/png;base64,%%%broken%%%", Index: 1},
			{Image: encodedSignature("three"), Index: 2},
		})
		require.NoError(t, err)
		require.Equal(t, 2, result.Accepted)
		require.Equal(t, 1, result.Skipped)

		s, err := fileStore.Get(token)
		require.NoError(t, err)
		require.Equal(t, session.StatusSigned, s.Status)
		require.Len(t, s.Signatures, 2)
	})

	t.Run("out-of-bounds index rejects whole submission", func(t *testing.T) {
		svc, fileStore, _, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, []session.SignaturePosition{{Index: 0}, {Index: 1}})

		_, err := svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: encodedSignature("one"), Index: 0},
			{Image: encodedSignature("five"), Index: 5},
		})
		require.ErrorIs(t, err, session.ErrInvalidPosition)

		s, err := fileStore.Get(token)
		require.NoError(t, err)
		require.Equal(t, session.StatusDelivered, s.Status)
		require.Empty(t, s.Signatures)
	})

	t.Run("empty submission", func(t *testing.T) {
		svc, _, _, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, nil)

		_, err := svc.Submit(context.Background(), token, nil)
		require.ErrorIs(t, err, session.ErrMissingSignature)
	})

	t.Run("all entries malformed", func(t *testing.T) {
		svc, fileStore, _, srv := newTestEnv(t)
		token := createDelivered(t, svc, srv.URL, nil)

		_, err := svc.Submit(context.Background(), token, []SubmissionEntry{
			{Image: "%%%", Index: 0},
			{Image: "", Index: 1},
		})
		require.ErrorIs(t, err, session.ErrMissingSignature)

		s, err := fileStore.Get(token)
		require.NoError(t, err)
		require.Equal(t, session.StatusDelivered, s.Status)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc, _, _, _ := newTestEnv(t)

		_, err := svc.Submit(context.Background(), "0123456789ab", []SubmissionEntry{
			{Image: encodedSignature("sig"), Index: 0},
		})
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestDocument(t *testing.T) {
	svc, _, _, srv := newTestEnv(t)

	token, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
	require.NoError(t, err)

	t.Run("returns source path", func(t *testing.T) {
		path, err := svc.Document(context.Background(), token)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, []byte(stubPDF), data)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Document(context.Background(), "0123456789ab")
		require.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestSessionRecordSurvivesRestart(t *testing.T) {
	svc, _, dir, srv := newTestEnv(t)

	token, _, err := svc.CreateFromWebhook(context.Background(), anaWebhook(srv.URL))
	require.NoError(t, err)

	// new store over the same directory stands in for a process restart
	reopened, err := store.NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	svc.store = reopened

	s, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "Ana", s.Client.FirstName)

	var onDisk session.Session
	raw, err := os.ReadFile(filepath.Join(dir, token+".json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, token, onDisk.Token)
}
