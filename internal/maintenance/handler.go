package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"interview-prep-api/internal/observability"
)

// AuthStore is the slice of the auth repository the cleanup needs.
type AuthStore interface {
	DeleteExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error)
}

// SessionStore is the slice of the session repository the cleanup needs.
type SessionStore interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CleanupHandler removes expired refresh-token rows and long-dead
// soft-deleted sessions. Meant to be driven by a scheduled job carrying the
// cron secret as a bearer token.
type CleanupHandler struct {
	authStore        AuthStore
	sessionStore     SessionStore
	logger           *observability.Logger
	cronSecret       string
	sessionRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	authStore AuthStore,
	sessionStore SessionStore,
	logger *observability.Logger,
	cronSecret string,
	sessionRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		authStore:        authStore,
		sessionStore:     sessionStore,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		sessionRetention: sessionRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Without a secret configured the endpoint does not exist.
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deletedTokens, err := h.authStore.DeleteExpiredRefreshTokens(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("cleanup_failed", map[string]any{"step": "refresh_tokens", "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	cutoff := time.Now().UTC().Add(-h.sessionRetention)
	deletedSessions, err := h.sessionStore.DeleteInactiveBefore(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("cleanup_failed", map[string]any{"step": "sessions", "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted_refresh_tokens": deletedTokens,
		"deleted_sessions":       deletedSessions,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int64{
			"deleted_refresh_tokens": deletedTokens,
			"deleted_sessions":       deletedSessions,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
