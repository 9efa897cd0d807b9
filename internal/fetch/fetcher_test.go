package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/fetch"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Run("returns body on 200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PD"))
		}))
		defer srv.Close()

		f := fetch.NewFetcher(5*time.Second, false, zap.NewNop())
		data, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, []byte("%PD"), data)
	})

	t.Run("non-200 is a definitive failure", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		f := fetch.NewFetcher(5*time.Second, true, zap.NewNop())
		_, err := f.Fetch(context.Background(), srv.URL)
		require.ErrorIs(t, err, session.ErrDocumentFetchFailed)

		var statusErr *fetch.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusNotFound, statusErr.Code)
		require.Equal(t, int32(1), hits.Load(), "status errors must not be retried")
	})

	t.Run("transport error retried once", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		f := fetch.NewFetcher(1*time.Second, true, zap.NewNop())
		_, err := f.Fetch(context.Background(), url)
		require.ErrorIs(t, err, session.ErrDocumentFetchFailed)
	})

	t.Run("bounded timeout surfaces fetch failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer srv.Close()

		f := fetch.NewFetcher(50*time.Millisecond, false, zap.NewNop())
		_, err := f.Fetch(context.Background(), srv.URL)
		require.ErrorIs(t, err, session.ErrDocumentFetchFailed)
	})
}
