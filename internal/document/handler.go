package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	maxUploadBytes   = 10 << 20
	maxJSONBodyBytes = 1 << 20
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Upload accepts one multipart resume file, extracts its text and returns the
// text with size metrics. Nothing is persisted; the client attaches the text
// to a session explicitly.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	extractor, ok := ForFilename(header.Filename)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file type %s not supported. Allowed types: %s",
			ext, strings.Join(AllowedExtensions(), ", ")))
		return
	}

	started := time.Now()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(content) == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	text, err := extractor.Extract(content)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			writeError(w, http.StatusBadRequest, "no text could be extracted from file")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusUnprocessableEntity, "failed to extract text from file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filename":        header.Filename,
		"file_size":       len(content),
		"content":         text,
		"word_count":      len(strings.Fields(text)),
		"character_count": len(text),
		"processing_time": time.Since(started).Seconds(),
	})
}

// ExportPDF streams a rendered preparation guide back to the client.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var req ExportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "at least one question is required")
		return
	}
	if req.Answers == nil {
		req.Answers = map[string]string{}
	}

	now := time.Now()
	var buf bytes.Buffer
	if err := WritePDF(&buf, req, now); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "pdf export failed")
		return
	}

	filename := "interview_prep_" + now.Format("20060102_150405") + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
