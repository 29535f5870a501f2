package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"interview-prep-api/internal/observability"
)

type fakeAuthStore struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeAuthStore) DeleteExpiredRefreshTokens(_ context.Context, _ int) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeSessionStore struct {
	deleted int64
	err     error
	cutoff  time.Time
}

func (f *fakeSessionStore) DeleteInactiveBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func newCleanup(authStore AuthStore, sessionStore SessionStore, secret string) *CleanupHandler {
	return NewCleanupHandler(authStore, sessionStore, observability.NewLogger(), secret, 30*24*time.Hour, 500)
}

func request(method, token string) *http.Request {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestCleanupRunsBothSteps(t *testing.T) {
	authStore := &fakeAuthStore{deleted: 7}
	sessionStore := &fakeSessionStore{deleted: 2}
	h := newCleanup(authStore, sessionStore, "cron-secret")

	rec := httptest.NewRecorder()
	h.Handle(rec, request(http.MethodPost, "cron-secret"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, authStore.calls)
	assert.Contains(t, rec.Body.String(), `"deleted_refresh_tokens":7`)
	assert.Contains(t, rec.Body.String(), `"deleted_sessions":2`)
	assert.WithinDuration(t, time.Now().UTC().Add(-30*24*time.Hour), sessionStore.cutoff, 5*time.Second)
}

func TestCleanupAuthorization(t *testing.T) {
	h := newCleanup(&fakeAuthStore{}, &fakeSessionStore{}, "cron-secret")

	rec := httptest.NewRecorder()
	h.Handle(rec, request(http.MethodPost, "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Handle(rec, request(http.MethodPost, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Handle(rec, request(http.MethodDelete, "cron-secret"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCleanupDisabledWithoutSecret(t *testing.T) {
	authStore := &fakeAuthStore{}
	h := newCleanup(authStore, &fakeSessionStore{}, "")

	rec := httptest.NewRecorder()
	h.Handle(rec, request(http.MethodPost, "anything"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, authStore.calls)
}

func TestCleanupSurfacesFailures(t *testing.T) {
	h := newCleanup(&fakeAuthStore{err: errors.New("db down")}, &fakeSessionStore{}, "cron-secret")

	rec := httptest.NewRecorder()
	h.Handle(rec, request(http.MethodGet, "cron-secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
