package interview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"interview-prep-api/internal/auth"
	"interview-prep-api/internal/session"
)

const maxJSONBodyBytes = 1 << 20

// Generation costs in credits. Bulk answers charge per question.
const (
	QuestionGenerationCost = 1
	AnswerGenerationCost   = 1
)

const maxBulkQuestions = 20

// Generator is the LLM surface; *Client is the production implementation.
type Generator interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]session.Question, error)
	GenerateAnswer(ctx context.Context, question, resumeText, jobDescription string) (string, error)
}

var _ Generator = (*Client)(nil)

// CreditGate deducts credits before a generation runs; the auth service
// implements it.
type CreditGate interface {
	DeductCredits(ctx context.Context, userID string, cost int) (auth.CreditResult, error)
}

type Handler struct {
	generator Generator
	credits   CreditGate
}

func NewHandler(generator Generator, credits CreditGate) *Handler {
	return &Handler{generator: generator, credits: credits}
}

type generateQuestionsRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	QuestionCount  int    `json:"question_count"`
	IncludeAnswers bool   `json:"include_answers"`
}

type generateAnswerRequest struct {
	Question       string `json:"question"`
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

type generateBulkAnswersRequest struct {
	Questions      []string `json:"questions"`
	ResumeText     string   `json:"resume_text"`
	JobDescription string   `json:"job_description"`
}

func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var body generateQuestionsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !h.chargeCredits(w, r, user.ID, QuestionGenerationCost) {
		return
	}

	started := time.Now()
	questions, err := h.generator.GenerateQuestions(r.Context(), QuestionRequest{
		ResumeText:     body.ResumeText,
		JobDescription: body.JobDescription,
		QuestionCount:  body.QuestionCount,
		IncludeAnswers: body.IncludeAnswers,
	})
	if err != nil {
		if errors.Is(err, ErrNoContext) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "question generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"questions":       questions,
		"generation_time": time.Since(started).Seconds(),
		"total_questions": len(questions),
	})
}

func (h *Handler) GenerateAnswer(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var body generateAnswerRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	if !h.chargeCredits(w, r, user.ID, AnswerGenerationCost) {
		return
	}

	started := time.Now()
	answer, err := h.generator.GenerateAnswer(r.Context(), body.Question, body.ResumeText, body.JobDescription)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "answer generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"question":        body.Question,
		"answer":          answer,
		"generation_time": time.Since(started).Seconds(),
	})
}

// GenerateBulkAnswers answers several questions in one request. The whole
// batch is charged up front; a mid-batch upstream failure returns the
// answers produced so far alongside the error count.
func (h *Handler) GenerateBulkAnswers(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var body generateBulkAnswersRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	questions := make([]string, 0, len(body.Questions))
	for _, q := range body.Questions {
		if q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		writeError(w, http.StatusBadRequest, "at least one question is required")
		return
	}
	if len(questions) > maxBulkQuestions {
		writeError(w, http.StatusBadRequest, "too many questions in one batch")
		return
	}

	if !h.chargeCredits(w, r, user.ID, AnswerGenerationCost*len(questions)) {
		return
	}

	started := time.Now()
	answers := make(map[string]string, len(questions))
	failed := 0
	for _, question := range questions {
		answer, err := h.generator.GenerateAnswer(r.Context(), question, body.ResumeText, body.JobDescription)
		if err != nil {
			sentry.CaptureException(err)
			failed++
			continue
		}
		answers[question] = answer
	}

	if len(answers) == 0 {
		writeError(w, http.StatusBadGateway, "bulk answer generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answers":         answers,
		"generation_time": time.Since(started).Seconds(),
		"total_answers":   len(answers),
		"failed_answers":  failed,
	})
}

// chargeCredits deducts the cost up front. An insufficient balance yields 402
// with advisory headers; the generation never runs.
func (h *Handler) chargeCredits(w http.ResponseWriter, r *http.Request, userID string, cost int) bool {
	result, err := h.credits.DeductCredits(r.Context(), userID, cost)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "credit check failed")
		return false
	}

	if !result.Success {
		w.Header().Set("X-Credits-Required", strconv.Itoa(cost))
		w.Header().Set("X-Credits-Available", strconv.Itoa(result.NewBalance))
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return false
	}

	return true
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
