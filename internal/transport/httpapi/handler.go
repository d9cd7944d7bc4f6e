// Package httpapi exposes the assessor service over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/assessor"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	svc    *assessor.Service
	logger *slog.Logger
}

func NewHandler(svc *assessor.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers the API routes on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/execute", h.Execute).Methods("POST")
	router.HandleFunc("/api/languages", h.Languages).Methods("GET")
	router.HandleFunc("/api/problems/{problemId}/starter/{languageId}", h.StarterCode).Methods("GET")
	router.HandleFunc("/api/health", h.Health).Methods("GET")

	router.HandleFunc("/api/tests/{testId}/start", h.Start).Methods("POST")
	router.HandleFunc("/api/tests/{testId}/status", h.Status).Methods("GET")

	router.HandleFunc("/api/attempts/{attemptId}", h.Attempt).Methods("GET")
	router.HandleFunc("/api/attempts/{attemptId}/questions", h.SubmitQuestion).Methods("POST")
	router.HandleFunc("/api/attempts/{attemptId}/submit", h.Submit).Methods("POST")
	router.HandleFunc("/api/attempts/{attemptId}/end", h.End).Methods("POST")
	router.HandleFunc("/api/attempts/{attemptId}/violations", h.RecordViolation).Methods("POST")
	router.HandleFunc("/api/attempts/{attemptId}/abandon", h.Abandon).Methods("POST")
	router.HandleFunc("/api/attempts/{attemptId}/activity", h.RecordActivity).Methods("POST")
}

// NewRouter returns a router with every route and request logging.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(h.logRequests)
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "ms", time.Since(start).Milliseconds())
	})
}

func responseWithJson(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func statusFor(code string) int {
	switch code {
	case assessor.CodeBadRequest:
		return http.StatusBadRequest
	case assessor.CodeNotFound:
		return http.StatusNotFound
	case assessor.CodeInvalidTransition, assessor.CodeGradingCancelled:
		return http.StatusConflict
	case assessor.CodeGradingUnavailable:
		return http.StatusServiceUnavailable
	case assessor.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) responseError(w http.ResponseWriter, r *http.Request, err error) {
	resp := assessor.ErrorResponse(err)
	status := statusFor(resp.Code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	responseWithJson(w, status, resp)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body: %v", assessor.ErrBadRequest, err)
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.Execute(r.Context(), req)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	responseWithJson(w, http.StatusOK, map[string]any{"languages": h.svc.Languages()})
}

func (h *Handler) StarterCode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code, err := h.svc.StarterCode(r.Context(), vars["problemId"], vars["languageId"])
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, map[string]string{"language": vars["languageId"], "code": code})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	pool := h.svc.Harness().Pool()
	responseWithJson(w, http.StatusOK, map[string]int64{"poolSize": pool.Size(), "poolBusy": pool.Busy()})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req api.StartReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.Start(r.Context(), mux.Vars(r)["testId"], req.UserID)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusCreated, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.responseError(w, r, fmt.Errorf("%w: userId query parameter is required", assessor.ErrBadRequest))
		return
	}
	resp, err := h.svc.Status(r.Context(), mux.Vars(r)["testId"], userID)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) Attempt(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Attempt(r.Context(), mux.Vars(r)["attemptId"])
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitQuestionReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.SubmitQuestion(r.Context(), mux.Vars(r)["attemptId"], req.QuestionSubmission)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.Submit(r.Context(), mux.Vars(r)["attemptId"], req.Questions)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.End(r.Context(), mux.Vars(r)["attemptId"])
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) RecordViolation(w http.ResponseWriter, r *http.Request) {
	var req api.ViolationReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.RecordViolation(r.Context(), mux.Vars(r)["attemptId"], req.Kind)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	var req api.AbandonReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	resp, err := h.svc.Abandon(r.Context(), mux.Vars(r)["attemptId"], req.Reason)
	if err != nil {
		h.responseError(w, r, err)
		return
	}
	responseWithJson(w, http.StatusOK, resp)
}

func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req api.ActivityReq
	if err := decode(w, r, &req); err != nil {
		h.responseError(w, r, err)
		return
	}
	kind, err := activity.ParseKind(req.Kind)
	if err != nil {
		h.responseError(w, r, fmt.Errorf("%w: %w", assessor.ErrBadRequest, err))
		return
	}
	if err := h.svc.RecordActivity(r.Context(), mux.Vars(r)["attemptId"], kind, req.Language); err != nil {
		h.responseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
