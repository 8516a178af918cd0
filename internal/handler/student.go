package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizzy-app/quizzy/internal/model"
)

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(students))
	for _, s := range students {
		out = append(out, map[string]any{"id": s.ID, "name": s.Name, "email": s.Email})
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out})
}

type updateStudentRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}
	var req updateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	var hash string
	if req.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		hash = string(b)
	}

	if err := h.store.UpdateStudent(id, req.Name, req.Email, hash); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "student updated"})
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}
	if err := h.store.DeleteStudent(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "student deleted"})
}

// handleExportResults returns every result of the calling teacher's tests.
func (h *Handler) handleExportResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	tests, err := h.store.ExportTeacherResults(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ResultsExport{
		TeacherID: user.ID,
		Date:      time.Now().Format("2006-01-02"),
		Tests:     tests,
	})
}
