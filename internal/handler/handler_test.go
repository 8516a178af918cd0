package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/quizzy-app/quizzy/internal/extract"
	"github.com/quizzy-app/quizzy/internal/generator"
	"github.com/quizzy-app/quizzy/internal/model"
	"github.com/quizzy-app/quizzy/internal/service"
	"github.com/quizzy-app/quizzy/internal/store"
)

type noopSynth struct{}

func (noopSynth) Synthesize(ctx context.Context, segment string, n int, difficulty model.Difficulty) ([]model.Question, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sampler := generator.New(noopSynth{}, generator.Config{})
	svc := service.New(st, sampler, extract.PlainText{}, service.Config{Now: time.Now})
	return New(svc, st, []byte("test-secret")).Router()
}

func postJSON(t *testing.T, h http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getWithToken(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signupAndLogin(t *testing.T, h http.Handler, name, role string) string {
	t.Helper()
	rec := postJSON(t, h, "/api/signup", "", map[string]string{
		"name": name, "email": name + "@example.com", "password": "secret123", "role": role,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d: %s", name, rec.Code, rec.Body)
	}

	rec = postJSON(t, h, "/api/login", "", map[string]string{
		"email": name + "@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", name, rec.Code, rec.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response missing token: %s", rec.Body)
	}
	return resp.Token
}

func TestAuthFlow(t *testing.T) {
	h := newTestHandler(t)
	token := signupAndLogin(t, h, "alice", "teacher")

	if rec := getWithToken(t, h, "/api/tests", token); rec.Code != http.StatusOK {
		t.Errorf("authenticated list: status %d: %s", rec.Code, rec.Body)
	}
	if rec := getWithToken(t, h, "/api/tests", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status %d, want 401", rec.Code)
	}
	if rec := getWithToken(t, h, "/api/tests", "not-a-token"); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newTestHandler(t)
	signupAndLogin(t, h, "alice", "teacher")

	rec := postJSON(t, h, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: status %d, want 401", rec.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	h := newTestHandler(t)

	rec := postJSON(t, h, "/api/signup", "", map[string]string{
		"name": "x", "email": "x@example.com", "password": "pw", "role": "admin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status %d, want 400", rec.Code)
	}

	signupAndLogin(t, h, "alice", "teacher")
	rec = postJSON(t, h, "/api/signup", "", map[string]string{
		"name": "alice2", "email": "alice@example.com", "password": "pw", "role": "student",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate email: status %d, want 409", rec.Code)
	}
}

func TestTeacherOnlyRoutes(t *testing.T) {
	h := newTestHandler(t)
	student := signupAndLogin(t, h, "bob", "student")
	teacher := signupAndLogin(t, h, "alice", "teacher")

	if rec := getWithToken(t, h, "/api/students", student); rec.Code != http.StatusForbidden {
		t.Errorf("student on teacher route: status %d, want 403", rec.Code)
	}
	if rec := getWithToken(t, h, "/api/students", teacher); rec.Code != http.StatusOK {
		t.Errorf("teacher listing students: status %d: %s", rec.Code, rec.Body)
	}
}

func TestSaveUploadRejectsOversized(t *testing.T) {
	path, err := saveUpload(strings.NewReader("within limit"), "doc.txt", 64)
	if err != nil {
		t.Fatalf("saveUpload: %v", err)
	}
	defer os.Remove(path)
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "within limit" {
		t.Errorf("stored upload = %q, %v", data, err)
	}

	big := strings.Repeat("x", 65)
	if _, err := saveUpload(strings.NewReader(big), "doc.txt", 64); !errors.Is(err, errUploadTooLarge) {
		t.Errorf("err = %v, want errUploadTooLarge", err)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)
	teacher := signupAndLogin(t, h, "alice", "teacher")

	rec := postJSON(t, h, "/api/tests/nope/manage", teacher, map[string]string{"action": "start"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing test: status %d, want 404", rec.Code)
	}

	rec = getWithToken(t, h, "/api/tests/abc", teacher)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad test ID: status %d, want 400", rec.Code)
	}
}
