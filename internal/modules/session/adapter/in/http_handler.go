package in

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	sessiondto "komerge/internal/modules/session/dto"
	sessionin "komerge/internal/modules/session/port/in"
	apperrors "komerge/internal/platform/errors"
	"komerge/internal/platform/id"
	"komerge/internal/platform/logctx"
)

const uploadSuffix = ".sqlite3"

// multipartSlack covers the multipart framing around the uploaded file.
const multipartSlack = 1 << 20

type Limits struct {
	SessionTTL      time.Duration
	FileTTL         time.Duration
	CleanupInterval time.Duration
	MaxUploadBytes  int64
	BasePath        string
}

type HTTPHandler struct {
	usecase sessionin.Usecase
	limits  Limits
}

func NewHTTPHandler(usecase sessionin.Usecase, limits Limits) *HTTPHandler {
	return &HTTPHandler{usecase: usecase, limits: limits}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type addGroupRequest struct {
	KeepID   *int64  `json:"keep_id"`
	MergeIDs []int64 `json:"merge_ids"`
}

func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes+multipartSlack)
	reader, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: expected multipart upload: %v", apperrors.ErrInvalidInput, err))
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeError(w, r, fmt.Errorf("%w: missing file field", apperrors.ErrInvalidInput))
			return
		}
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: read upload: %v", apperrors.ErrInvalidInput, err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		if !strings.HasSuffix(strings.ToLower(part.FileName()), uploadSuffix) {
			_ = part.Close()
			h.writeError(w, r, fmt.Errorf("%w: please upload a %s file", apperrors.ErrInvalidInput, uploadSuffix))
			return
		}
		out, err := h.usecase.Create(r.Context(), part)
		_ = part.Close()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, out)
		return
	}
}

func (h *HTTPHandler) Books(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.ListBooks(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) AddGroup(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req addGroupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid json: %v", apperrors.ErrInvalidInput, err))
		return
	}
	if req.KeepID == nil {
		h.writeError(w, r, fmt.Errorf("%w: keep_id is required", apperrors.ErrInvalidInput))
		return
	}
	out, err := h.usecase.AddGroup(r.Context(), sessiondto.AddGroupInput{SessionID: sessionID, KeepID: *req.KeepID, MergeIDs: req.MergeIDs})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) RemoveLastGroup(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.RemoveLastGroup(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ClearGroups(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.ClearGroups(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Execute(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.Execute(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Result(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.Result(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Download(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.Download(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer out.Body.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(out.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, out.Body); err != nil {
		log := logctx.FromContext(r.Context())
		log.Warn().Err(err).Str("session_id", sessionID).Msg("download interrupted")
	}
}

func (h *HTTPHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if id.Valid(sessionID) {
		if err := h.usecase.Cleanup(r.Context(), sessionID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "session cleaned up"})
}

func (h *HTTPHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	out, err := h.usecase.SweepExpired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		sessiondto.SweepOutput
		Message string `json:"message"`
	}{
		Success:     true,
		SweepOutput: out,
		Message:     fmt.Sprintf("Cleaned up %d expired sessions", out.CleanedSessions),
	})
}

func (h *HTTPHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.Renew(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"valid":                          true,
		"session_id":                     out.SessionID,
		"session_expires_at":             out.ExpiresAt,
		"file_cleanup_at":                out.FileCleanupAt,
		"session_remaining_minutes":      minutes(out.SessionRemaining),
		"file_cleanup_remaining_minutes": minutes(out.FileRemaining),
	})
}

func (h *HTTPHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	out, err := h.usecase.Info(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		sessiondto.InfoOutput
		SessionRemainingMinutes int64 `json:"session_remaining_minutes"`
		FileRemainingMinutes    int64 `json:"file_cleanup_remaining_minutes"`
	}{
		InfoOutput:              out,
		SessionRemainingMinutes: minutes(out.SessionRemaining),
		FileRemainingMinutes:    minutes(out.FileRemaining),
	})
}

func (h *HTTPHandler) Config(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_ttl_minutes":      minutes(h.limits.SessionTTL),
		"file_ttl_minutes":         minutes(h.limits.FileTTL),
		"cleanup_interval_minutes": minutes(h.limits.CleanupInterval),
		"max_upload_bytes":         h.limits.MaxUploadBytes,
		"base_path":                h.limits.BasePath,
	})
}

func (h *HTTPHandler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		log := logctx.FromContext(r.Context())
		log.Error().Err(err).Msg("write healthcheck")
	}
}

// sessionID rejects ids that could never have been issued. They are reported
// the same way as unknown sessions.
func (h *HTTPHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := mux.Vars(r)["id"]
	if !id.Valid(sessionID) {
		h.writeError(w, r, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID))
		return "", false
	}
	return sessionID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log := logctx.DefaultLogger()
		log.Error().Err(err).Msg("encode json response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	log := logctx.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("request failed")
		message = "internal storage failure"
	} else {
		log.Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	h.writeJSON(w, status, errorBody{Error: code, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, apperrors.ErrFileMissing):
		return http.StatusGone, "file_missing"
	case errors.Is(err, apperrors.ErrInvalidDatabase):
		return http.StatusBadRequest, "invalid_database"
	case errors.Is(err, apperrors.ErrUnknownBook):
		return http.StatusBadRequest, "unknown_book"
	case errors.Is(err, apperrors.ErrEmpty):
		return http.StatusBadRequest, "empty"
	case errors.Is(err, apperrors.ErrNoGroups):
		return http.StatusBadRequest, "no_groups"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrAlreadyExecuted):
		return http.StatusConflict, "already_executed"
	case errors.Is(err, apperrors.ErrExecutionInProgress):
		return http.StatusConflict, "execution_in_progress"
	case errors.Is(err, apperrors.ErrNotExecuted):
		return http.StatusConflict, "not_executed"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "io_failure"
	}
}

func minutes(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Minute)
}
