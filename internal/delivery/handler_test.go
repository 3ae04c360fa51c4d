package delivery

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/routewise-ops/routewise/internal/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(repo *memoryRepo) http.Handler {
	h := NewHandler(newTestLogger(), NewService(repo, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 7})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r
}

func postTransition(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/1/transition", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTransitionToPendingReturnsUnprocessable(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusDelivered})
	router := newTestRouter(repo)

	rec := postTransition(t, router, `{"status":"pending"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "illegal status transition")
}

func TestTransitionUnknownStatusFailsValidation(t *testing.T) {
	repo := newMemoryRepo(Delivery{ID: 1, Status: StatusPending})
	router := newTestRouter(repo)

	rec := postTransition(t, router, `{"status":"returned"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
