// Package handler exposes the service as a JSON API over chi. Handlers only
// decode requests, call the service, and translate its errors to HTTP
// statuses.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quizzy-app/quizzy/internal/model"
	"github.com/quizzy-app/quizzy/internal/service"
	"github.com/quizzy-app/quizzy/internal/store"
)

// maxUploadBytes bounds a document upload.
const maxUploadBytes = 16 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc       *service.Service
	store     *store.Store
	jwtSecret []byte
}

// New creates a new Handler.
func New(svc *service.Service, st *store.Store, jwtSecret []byte) *Handler {
	return &Handler{svc: svc, store: st, jwtSecret: jwtSecret}
}

// Router builds the full route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/signup", h.handleSignup)
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/tests/generate", h.handleGenerate)
		r.Get("/api/tests", h.handleListTests)
		// Student-facing routes address a test by numeric ID; the
		// teacher-only routes below address it by name, which is unique
		// within the teacher's own tests.
		r.Get("/api/tests/{test}", h.handleGetTest)
		r.Post("/api/tests/{test}/submit", h.handleSubmitResult)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher))

			r.Post("/api/tests/{test}/assign", h.handleAssign)
			r.Post("/api/tests/{test}/manage", h.handleManage)
			r.Delete("/api/tests/{test}", h.handleDeleteTest)
			r.Get("/api/tests/{test}/results", h.handleResults)
			r.Get("/api/tests/{test}/questions", h.handleReviewQuestions)
			r.Put("/api/tests/{test}/questions/{index}", h.handleEditQuestion)
			r.Delete("/api/tests/{test}/questions/{index}", h.handleDeleteQuestion)
			r.Post("/api/tests/{test}/questions/{index}/regenerate", h.handleRegenerateQuestion)

			r.Get("/api/students", h.handleListStudents)
			r.Put("/api/students/{studentID}", h.handleUpdateStudent)
			r.Delete("/api/students/{studentID}", h.handleDeleteStudent)
			r.Get("/api/results/export", h.handleExportResults)
		})
	})

	return r
}

// handleGenerate accepts a multipart upload with the source document plus
// generation parameters, and creates a test from it.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "document file required")
		return
	}
	defer file.Close()

	path, err := saveUpload(file, header.Filename, maxUploadBytes)
	if err != nil {
		if errors.Is(err, errUploadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		slog.Error("save upload", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer os.Remove(path)

	numQuestions, _ := strconv.Atoi(r.FormValue("num_questions"))
	out, err := h.svc.Generate(r.Context(), user, service.GenerateInput{
		DocumentPath: path,
		SourceName:   header.Filename,
		TestName:     r.FormValue("test_name"),
		NumQuestions: numQuestions,
		Difficulty:   model.Difficulty(r.FormValue("difficulty")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{"test": out.Test}
	if out.Warning != "" {
		resp["warning"] = out.Warning
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	tests, err := h.svc.ListTests(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "test"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid test ID")
		return
	}
	t, err := h.svc.GetTest(r.Context(), user, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type assignRequest struct {
	Cohort   []int64 `json:"cohort"`
	Start    string  `json:"start_time"`
	End      string  `json:"end_time"`
	Duration int     `json:"duration"`
}

func (req assignRequest) assignment() (service.Assignment, error) {
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		return service.Assignment{}, errors.New("start_time must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		return service.Assignment{}, errors.New("end_time must be RFC3339")
	}
	return service.Assignment{Cohort: req.Cohort, Start: start, End: end, Duration: req.Duration}, nil
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := req.assignment()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Assign(r.Context(), user, chi.URLParam(r, "test"), a); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "test assigned"})
}

type manageRequest struct {
	Action string `json:"action"`
	assignRequest
}

func (h *Handler) handleManage(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req manageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var a *service.Assignment
	if service.ManageAction(req.Action) == service.ActionReassign {
		parsed, err := req.assignment()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a = &parsed
	}
	err := h.svc.Manage(r.Context(), user, chi.URLParam(r, "test"), service.ManageAction(req.Action), a)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "test " + req.Action + " applied"})
}

func (h *Handler) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "test"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid test ID")
		return
	}
	var result model.Result
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.SubmitResult(r.Context(), user, id, result); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "result recorded"})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	results, err := h.svc.Results(r.Context(), user, chi.URLParam(r, "test"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleReviewQuestions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	questions, total, err := h.svc.ReviewQuestions(r.Context(), user, chi.URLParam(r, "test"), page, perPage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"total":     total,
	})
}

func (h *Handler) handleEditQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	index, err := questionIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var q model.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.EditQuestion(r.Context(), user, chi.URLParam(r, "test"), index, q); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "question updated"})
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	index, err := questionIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), user, chi.URLParam(r, "test"), index); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "question deleted"})
}

func (h *Handler) handleRegenerateQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	index, err := questionIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.svc.RegenerateQuestion(r.Context(), user, chi.URLParam(r, "test"), index)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if err := h.svc.DeleteTest(r.Context(), user, chi.URLParam(r, "test")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "test deleted"})
}

func questionIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, errors.New("invalid question index")
	}
	return index, nil
}

// errUploadTooLarge rejects documents over maxUploadBytes.
var errUploadTooLarge = errors.New("document exceeds the upload size limit")

func saveUpload(file io.Reader, filename string, limit int64) (string, error) {
	dst, err := os.CreateTemp("", "quizzy-upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	// Read one byte past the limit so an oversized document is refused
	// rather than silently truncated.
	n, err := io.Copy(dst, io.LimitReader(file, limit+1))
	if err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	if n > limit {
		os.Remove(dst.Name())
		return "", errUploadTooLarge
	}
	return dst.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrWindowClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSynthesis):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
