package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/importer"
	"github.com/sumire/autopost/internal/joblog"
	"github.com/sumire/autopost/internal/repository"
	"github.com/sumire/autopost/internal/service"
)

type testServer struct {
	e     *echo.Echo
	token string
	jobs  *repository.JobRepository
	posts *repository.PostJobRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jobRepo := repository.NewJobRepository(db)
	postRepo := repository.NewPostJobRepository(db)
	logs := joblog.New(repository.NewJobLogRepository(db), nil, nil)
	auth := service.NewAuthService(service.AuthConfig{JWTSecret: "test-secret"})
	posts := service.NewPostService(postRepo, logs, nil, service.PostServiceConfig{}, nil)

	e := NewRouter(Services{
		Auth:     auth,
		Jobs:     service.NewJobService(jobRepo, logs),
		Posts:    posts,
		Importer: importer.New(posts, nil, nil),
	})
	pair, err := auth.IssueTokenPair("ops")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testServer{e: e, token: pair.AccessToken, jobs: jobRepo, posts: postRepo}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, method, path, r, echo.MIMEApplicationJSON)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data  T         `json:"data"`
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	return env.Error.Code
}

type stubQueue struct {
	waiting int
	running bool
}

func (q stubQueue) Len() int       { return q.waiting }
func (q stubQueue) Draining() bool { return q.running }

func TestHealthReportsPostQueue(t *testing.T) {
	e := NewRouter(Services{
		Auth:  service.NewAuthService(service.AuthConfig{JWTSecret: "test-secret"}),
		Queue: stubQueue{waiting: 2, running: true},
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	if got.Status != "ok" || got.PostQueue == nil || got.PostQueue.Waiting != 2 || !got.PostQueue.Running {
		t.Fatalf("health = %s", rec.Body.String())
	}
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "unauthorized" {
		t.Fatalf("unauthenticated = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.json(t, http.MethodPost, "/api/v1/auth/refresh", `{}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("refresh without token = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.json(t, http.MethodGet, "/api/v1/auth/me", "")
	if got := decode[map[string]string](t, rec); got["operator"] != "ops" {
		t.Fatalf("me = %v", got)
	}
}

func TestJobLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	rec := s.json(t, http.MethodPost, "/api/v1/jobs", `{"type":"BLOG_POST","subject":"kimchi","payload":{"keyword":"kimchi"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	job := decode[domain.Job](t, rec)
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s", job.Status)
	}

	rec = s.json(t, http.MethodPost, "/api/v1/jobs", `{"type":"BLOG_POST","payload":[1]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("array payload = %d", rec.Code)
	}

	rec = s.json(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry pending = %d", rec.Code)
	}

	if ok, err := s.jobs.Claim(ctx, job.ID); !ok || err != nil {
		t.Fatalf("claim: %v %v", ok, err)
	}
	rec = s.json(t, http.MethodDelete, "/api/v1/jobs/"+job.ID, "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "job_processing" {
		t.Fatalf("delete processing = %d %s", rec.Code, rec.Body.String())
	}

	if err := s.jobs.Fail(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	rec = s.json(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("retry failed = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Job](t, rec); got.Status != domain.JobStatusPending || got.ErrorMessage != nil {
		t.Fatalf("retried = %+v", got)
	}

	rec = s.json(t, http.MethodGet, "/api/v1/jobs/"+job.ID+"/logs", "")
	if logs := decode[[]domain.LogEntry](t, rec); len(logs) != 2 {
		t.Fatalf("logs = %+v", logs)
	}

	rec = s.json(t, http.MethodGet, "/api/v1/jobs?status=pending&limit=10", "")
	if jobs := decode[[]domain.Job](t, rec); len(jobs) != 1 {
		t.Fatalf("list = %+v", jobs)
	}
	rec = s.json(t, http.MethodGet, "/api/v1/jobs?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}

	rec = s.json(t, http.MethodDelete, "/api/v1/jobs/"+job.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = s.json(t, http.MethodGet, "/api/v1/jobs/"+job.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted = %d", rec.Code)
	}
}

func TestPostEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.json(t, http.MethodPost, "/api/v1/posts", `{"target_url":"https://board.example.com/list?id=cats","title":"hi","content_html":"<p>x</p>","nickname":"anon","password":"pw"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"password"`) {
		t.Fatalf("password leaked: %s", rec.Body.String())
	}
	post := decode[domain.PostJob](t, rec)
	if post.Destination != domain.DestinationForum {
		t.Fatalf("destination = %q", post.Destination)
	}

	rec = s.json(t, http.MethodPost, "/api/v1/posts", `{"title":"hi"}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("invalid create = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.json(t, http.MethodGet, "/api/v1/posts/"+post.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
}

func TestPostImportRequiresFile(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()

	rec := s.do(t, http.MethodPost, "/api/v1/posts/import", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("import without file = %d %s", rec.Code, rec.Body.String())
	}

	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "posts.xlsx")
	_, _ = fw.Write([]byte("not a workbook"))
	_ = mw.Close()
	rec = s.do(t, http.MethodPost, "/api/v1/posts/import", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("import garbage = %d %s", rec.Code, rec.Body.String())
	}
}
