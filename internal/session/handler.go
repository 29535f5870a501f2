package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"interview-prep-api/internal/auth"
	"interview-prep-api/internal/validate"
)

const maxJSONBodyBytes = 1 << 20

// Store is the persistence surface the handler drives. *Repository is the
// Postgres implementation; tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, userID string, input CreateInput) (*Session, error)
	Get(ctx context.Context, id, userID string) (*Session, error)
	List(ctx context.Context, userID string, activeOnly bool) ([]*Session, error)
	Update(ctx context.Context, id, userID string, input UpdateInput) (*Session, error)
	SetQuestions(ctx context.Context, id, userID string, questions []Question) (*Session, error)
	SetAnswers(ctx context.Context, id, userID string, answers map[string]string) (*Session, error)
	SoftDelete(ctx context.Context, id, userID string) error
	PermanentDelete(ctx context.Context, id, userID string) error
	Search(ctx context.Context, userID, query string) ([]*Session, error)
	CountForUser(ctx context.Context, userID string) (int, error)
}

var _ Store = (*Repository)(nil)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var input CreateInput
	if !decodeJSON(w, r, &input) {
		return
	}

	input.CompanyName = validate.SanitizeText(input.CompanyName, 200)
	input.JobTitle = validate.SanitizeText(input.JobTitle, 200)

	s, err := h.store.Create(r.Context(), user.ID, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"session": s})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	activeOnly := true
	if raw := r.URL.Query().Get("active_only"); raw != "" {
		activeOnly = raw != "false"
	}

	sessions, err := h.store.List(r.Context(), user.ID, activeOnly)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":       sessions,
		"total_sessions": len(sessions),
	})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Get(r.Context(), id, user.ID)
	if err != nil {
		writeStoreError(w, err, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": s})
}

func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var input UpdateInput
	if !decodeJSON(w, r, &input) {
		return
	}

	s, err := h.store.Update(r.Context(), id, user.ID, input)
	if err != nil {
		writeStoreError(w, err, "failed to update session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": s})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.SoftDelete(r.Context(), id, user.ID); err != nil {
		writeStoreError(w, err, "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

func (h *Handler) PermanentlyDeleteSession(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.PermanentDelete(r.Context(), id, user.ID); err != nil {
		writeStoreError(w, err, "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "session permanently deleted"})
}

// AddQuestions replaces the session's question list. Questions arriving
// without an ID or timestamp get them assigned here.
func (h *Handler) AddQuestions(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var questions []Question
	if !decodeJSON(w, r, &questions) {
		return
	}

	now := time.Now().UTC()
	for i := range questions {
		if strings.TrimSpace(questions[i].Question) == "" {
			writeError(w, http.StatusBadRequest, "question text is required")
			return
		}
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		if questions[i].CreatedAt.IsZero() {
			questions[i].CreatedAt = now
		}
	}

	s, err := h.store.SetQuestions(r.Context(), id, user.ID, questions)
	if err != nil {
		writeStoreError(w, err, "failed to save questions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": s})
}

func (h *Handler) UpdateAnswers(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var answers map[string]string
	if !decodeJSON(w, r, &answers) {
		return
	}
	if answers == nil {
		answers = map[string]string{}
	}

	s, err := h.store.SetAnswers(r.Context(), id, user.ID, answers)
	if err != nil {
		writeStoreError(w, err, "failed to save answers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": s})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Get(r.Context(), id, user.ID)
	if err != nil {
		writeStoreError(w, err, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, s.Stats())
}

func (h *Handler) SearchSessions(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	sessions, err := h.store.Search(r.Context(), user.ID, query)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to search sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":       sessions,
		"total_sessions": len(sessions),
	})
}

// AutoName derives a display name from the session's content and stores it as
// the company name.
func (h *Handler) AutoName(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Get(r.Context(), id, user.ID)
	if err != nil {
		writeStoreError(w, err, "failed to load session")
		return
	}

	count, err := h.store.CountForUser(r.Context(), user.ID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to name session")
		return
	}

	name := DeriveName(s, count)
	updated, err := h.store.Update(r.Context(), id, user.ID, UpdateInput{CompanyName: &name})
	if err != nil {
		writeStoreError(w, err, "failed to name session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generated_name": name,
		"session":        updated,
	})
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
