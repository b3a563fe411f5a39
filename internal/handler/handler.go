package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examstats/internal/handler/views"
	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/report"
	"github.com/pavelanni/examstats/internal/store"
)

// maxBodyBytes caps JSON request bodies; exam uploads get uploadLimit.
const (
	maxBodyBytes = 1 << 20
	uploadLimit  = 10 << 20
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	reports *report.Service
	config  model.ServerConfig
}

// New creates a new Handler.
func New(s *store.Store, reports *report.Service, cfg model.ServerConfig) *Handler {
	if cfg.Realm == "" {
		cfg.Realm = "examstats"
	}
	return &Handler{store: s, reports: reports, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(appI18n.Middleware)

		r.Post("/logout", h.handleLogout)
		r.Get("/exams", h.handleListExams)

		r.Route("/courses/{courseID}/exams/{examID}", func(r chi.Router) {
			r.Get("/report", h.handleReport)
			r.Get("/report.html", h.handleReportPage)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleGrader, model.UserRoleAdmin))
				r.Post("/unverified/verify", h.handleVerify)
				r.Post("/responses/{responseID}/answers/{index}", h.handleCorrectAnswer)
				r.Post("/responses/{responseID}/key", h.handleReassignKey)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Post("/exams", h.handleUploadExam)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/active", h.handleSetUserActive)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(rep).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// loadReport resolves the exam in the URL and checks it belongs to the course.
func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*model.Report, bool) {
	courseID, examID, ok := examParams(w, r)
	if !ok {
		return nil, false
	}
	rep, err := h.reports.Report(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if rep.CourseID != courseID {
		http.Error(w, "exam not found", http.StatusNotFound)
		return nil, false
	}
	return rep, true
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	_, examID, ok := h.examInCourse(w, r)
	if !ok {
		return
	}
	var req model.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ResponseID == "" || req.KeyID == "" {
		http.Error(w, "responseId and keyId are required", http.StatusBadRequest)
		return
	}
	scored, err := h.reports.Verify(r.Context(), examID, req, username(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scored)
}

func (h *Handler) handleCorrectAnswer(w http.ResponseWriter, r *http.Request) {
	_, examID, ok := h.examInCourse(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid answer index", http.StatusBadRequest)
		return
	}
	var req model.AnswerCorrection
	if !decodeJSON(w, r, &req) {
		return
	}
	scored, err := h.reports.CorrectAnswer(r.Context(), examID, chi.URLParam(r, "responseID"), index, req.Answer, username(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scored)
}

func (h *Handler) handleReassignKey(w http.ResponseWriter, r *http.Request) {
	_, examID, ok := h.examInCourse(w, r)
	if !ok {
		return
	}
	var req struct {
		KeyID string `json:"keyId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	scored, err := h.reports.ReassignKey(r.Context(), examID, chi.URLParam(r, "responseID"), req.KeyID, username(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scored)
}

// examInCourse is examParams plus a check that the exam exists in the course.
func (h *Handler) examInCourse(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	courseID, examID, ok := examParams(w, r)
	if !ok {
		return 0, 0, false
	}
	exam, err := h.store.GetExam(examID)
	if err != nil {
		writeError(w, r, err)
		return 0, 0, false
	}
	if exam == nil || exam.CourseID != courseID {
		http.Error(w, "exam not found", http.StatusNotFound)
		return 0, 0, false
	}
	return courseID, examID, true
}

func examParams(w http.ResponseWriter, r *http.Request) (courseID, examID int64, ok bool) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return 0, 0, false
	}
	examID, err = strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid exam ID", http.StatusBadRequest)
		return 0, 0, false
	}
	return courseID, examID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	switch {
	case errors.Is(err, report.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func username(r *http.Request) string {
	if u := model.UserFromContext(r.Context()); u != nil {
		return u.Username
	}
	return ""
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
