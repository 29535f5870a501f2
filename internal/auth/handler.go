package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"interview-prep-api/internal/observability"
	"interview-prep-api/internal/security"
	"interview-prep-api/internal/validate"
)

const maxJSONBodyBytes = 1 << 20

// RefreshTokenHeader carries refresh tokens on a dedicated header so the two
// token types never share the Authorization slot.
const RefreshTokenHeader = "X-Refresh-Token"

// AdminKeyHeader authorizes credit grants. Credit top-ups are not a
// self-service operation.
const AdminKeyHeader = "X-Admin-Key"

type Handler struct {
	service  *Service
	tracker  *security.Tracker
	logger   *observability.Logger
	adminKey string
}

func NewHandler(service *Service, tracker *security.Tracker, logger *observability.Logger, adminKey string) *Handler {
	return &Handler{
		service:  service,
		tracker:  tracker,
		logger:   logger,
		adminKey: strings.TrimSpace(adminKey),
	}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileUpdateRequest struct {
	Name string `json:"name"`
}

type creditRequest struct {
	Cost int `json:"cost"`
}

type creditGrantRequest struct {
	Amount int `json:"amount"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := security.ClientIdentifier(r, validate.NormalizeEmail(body.Email))
	if locked, remaining := h.tracker.IsLockedOut(identifier); locked {
		writeLocked(w, http.StatusTooManyRequests, remaining)
		return
	}

	_, tokens, err := h.service.CreateUser(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.tracker.RecordSuccess(identifier)
	writeJSON(w, http.StatusCreated, tokens)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := security.ClientIdentifier(r, validate.NormalizeEmail(body.Email))
	if locked, remaining := h.tracker.IsLockedOut(identifier); locked {
		writeLocked(w, http.StatusTooManyRequests, remaining)
		return
	}

	_, tokens, err := h.service.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		// Only real credential mismatches count toward lockout; an empty
		// body is a client bug, not a guessing attempt.
		if CodeOf(err) == CodeInvalidCredentials {
			h.tracker.RecordFailure(identifier)
		}
		h.writeAuthError(w, err)
		return
	}

	h.tracker.RecordSuccess(identifier)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get(RefreshTokenHeader))
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	tokens, err := h.service.RefreshTokens(r.Context(), raw)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout always succeeds from the client's perspective: revocation failures
// are logged server-side and the access token's expiry is the backstop.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if raw, ok := bearerToken(r); ok {
		h.service.BlacklistToken(r.Context(), raw)
	}

	rawRefresh := strings.TrimSpace(r.Header.Get(RefreshTokenHeader))
	if err := h.service.RevokeRefreshToken(r.Context(), user.ID, rawRefresh); err != nil {
		h.logger.Error("logout_revocation_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	profile, err := h.service.Profile(r.Context(), user)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var body profileUpdateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), user.ID, body.Name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) CheckCredits(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var body creditRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Cost <= 0 {
		body.Cost = 1
	}

	check, err := h.service.CheckCredits(r.Context(), user.ID, body.Cost)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) DeductCredits(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var body creditRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Cost <= 0 {
		body.Cost = 1
	}

	result, err := h.service.DeductCredits(r.Context(), user.ID, body.Cost)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	if !result.Success {
		w.Header().Set("X-Credits-Required", strconv.Itoa(body.Cost))
		w.Header().Set("X-Credits-Available", strconv.Itoa(result.NewBalance))
	}

	writeJSON(w, http.StatusOK, result)
}

// AddCredits requires the admin key on top of a valid access token: an
// authenticated user must not be able to grant themselves credits.
func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if h.adminKey == "" || subtle.ConstantTimeCompare(
		[]byte(strings.TrimSpace(r.Header.Get(AdminKeyHeader))), []byte(h.adminKey)) != 1 {
		writeError(w, http.StatusForbidden, "credit grants require admin authorization")
		return
	}

	var body creditGrantRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := h.service.AddCredits(r.Context(), user.ID, body.Amount)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            result.Success,
		"new_credit_balance": result.NewBalance,
		"message":            fmt.Sprintf("added %d credits to account", body.Amount),
	})
}

// writeAuthError maps a typed failure to its HTTP status. Internal failures
// go to Sentry and surface as an opaque 500.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	code := CodeOf(err)
	status := httpStatus(code)

	if status == http.StatusInternalServerError {
		sentry.CaptureException(err)
		writeError(w, status, "operation failed")
		return
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
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

func writeLocked(w http.ResponseWriter, status int, remaining time.Duration) {
	retryAfter := int(remaining.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	minutes := int(remaining.Minutes()) + 1
	writeJSON(w, status, map[string]string{
		"error": fmt.Sprintf("too many failed attempts, try again in %d minutes", minutes),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
