package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
	"github.com/AniketChoudhary834/LMS/pkg/storage"
	"github.com/AniketChoudhary834/LMS/pkg/store"
	"github.com/AniketChoudhary834/LMS/services/learning/internal/app"
)

const (
	instructorToken = "instructor-token"
	studentToken    = "student-token"
)

type staticVerifier map[string]domain.Identity

func (v staticVerifier) Verify(token string) (domain.Identity, error) {
	id, ok := v[token]
	if !ok {
		return domain.Identity{}, errors.New("token signature invalid")
	}
	return id, nil
}

type stubGenerator struct{ reply string }

func (g stubGenerator) GenerateText(context.Context, string, string) (string, error) {
	return g.reply, nil
}

type brokenCourseStore struct {
	*store.MemoryStore
}

func (brokenCourseStore) GetCourse(context.Context, string) (domain.Course, bool, error) {
	return domain.Course{}, false, errors.New("pq: connection refused to 10.0.0.5")
}

type testServer struct {
	handler http.Handler
	objects *storage.MemoryStore
}

type options struct {
	data      store.Store
	maxUpload int64
	quizLimit int
}

func newTestServer(t *testing.T, opts options) testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if opts.data == nil {
		opts.data = store.NewMemoryStore()
	}
	objects := storage.NewMemoryStore("http://cdn.test")
	core, err := app.New(app.Config{
		Store:     opts.data,
		Objects:   objects,
		Generator: stubGenerator{reply: `{"questions":[{"question":"2+2?","options":["3","4","5","6"],"correctAnswer":"4"}]}`},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{
		App: core,
		Verifier: staticVerifier{
			instructorToken: {ID: "inst-1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleInstructor},
			studentToken:    {ID: "stu-1", Name: "Sam", Email: "sam@example.com", Role: domain.RoleStudent},
		},
		Redis:                  client,
		MaxUploadBytes:         opts.maxUpload,
		QuizRateLimitPerMinute: opts.quizLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return testServer{handler: srv.Router(), objects: objects}
}

func (ts testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func createCourse(t *testing.T, ts testServer, lectures ...string) (string, []string) {
	t.Helper()
	curriculum := make([]map[string]any, 0, len(lectures))
	for _, title := range lectures {
		curriculum = append(curriculum, map[string]any{"title": title, "videoUrl": "http://cdn.test/" + title})
	}
	rec, body := ts.do(t, http.MethodPost, "/api/courses", instructorToken, map[string]any{
		"title":           "Go in Practice",
		"category":        "programming",
		"level":           "beginner",
		"primaryLanguage": "english",
		"curriculum":      curriculum,
	})
	expectStatus(t, rec, http.StatusCreated)
	ids := make([]string, 0, len(lectures))
	for _, l := range body["curriculum"].([]any) {
		ids = append(ids, l.(map[string]any)["id"].(string))
	}
	return body["id"].(string), ids
}

func TestCourseCompletionFlow(t *testing.T) {
	ts := newTestServer(t, options{})
	courseID, lectures := createCourse(t, ts, "L1", "L2")

	rec, body := ts.do(t, http.MethodPost, "/api/courses/"+courseID+"/enroll", studentToken, nil)
	expectStatus(t, rec, http.StatusCreated)
	if body["alreadyEnrolled"] != false {
		t.Fatalf("unexpected enroll body: %v", body)
	}
	rec, body = ts.do(t, http.MethodPost, "/api/courses/"+courseID+"/enroll", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["alreadyEnrolled"] != true {
		t.Fatalf("unexpected re-enroll body: %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/courses/"+courseID+"/enrollment", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["enrolled"] != true {
		t.Fatalf("expected enrolled, got %v", body)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/progress/mark-viewed", studentToken, map[string]string{
		"courseId": courseID, "lectureId": lectures[0],
	})
	expectStatus(t, rec, http.StatusOK)
	if body["completed"] != false || body["completionDate"] != nil {
		t.Fatalf("completed after one lecture: %v", body)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/progress/mark-viewed", studentToken, map[string]string{
		"courseId": courseID, "lectureId": lectures[1],
	})
	expectStatus(t, rec, http.StatusOK)
	if body["completed"] != true || body["completionDate"] == nil {
		t.Fatalf("expected completion, got %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/courses/"+courseID, studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	students := body["students"].([]any)
	if len(students) != 1 || students[0].(map[string]any)["completed"] != true {
		t.Fatalf("roster not completed: %v", students)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/progress/stu-1/"+courseID, studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["isEnrolled"] != true || body["completed"] != true || len(body["progress"].([]any)) != 2 {
		t.Fatalf("unexpected progress view: %v", body)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/progress/reset", studentToken, map[string]string{"courseId": courseID})
	expectStatus(t, rec, http.StatusOK)
	if body["completed"] != false || len(body["lecturesProgress"].([]any)) != 0 {
		t.Fatalf("reset left progress: %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/courses/enrolled", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["courses"].([]any)) != 1 {
		t.Fatalf("reset changed the ledger: %v", body)
	}
}

func TestProgressErrors(t *testing.T) {
	ts := newTestServer(t, options{})
	courseID, lectures := createCourse(t, ts, "L1")

	rec, body := ts.do(t, http.MethodPost, "/api/progress/mark-viewed", studentToken, map[string]string{
		"courseId": courseID, "lectureId": lectures[0],
	})
	expectStatus(t, rec, http.StatusForbidden)
	if body["code"] != "forbidden" {
		t.Fatalf("unexpected error body: %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/progress/stu-1/"+courseID, studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if body["isEnrolled"] != false {
		t.Fatalf("expected not enrolled: %v", body)
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/progress/inst-1/"+courseID, studentToken, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec, _ = ts.do(t, http.MethodPost, "/api/progress/reset", studentToken, map[string]string{"courseId": courseID})
	expectStatus(t, rec, http.StatusNotFound)

	rec, _ = ts.do(t, http.MethodPost, "/api/progress/mark-viewed", studentToken, map[string]string{"courseId": courseID})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestCatalogRoutes(t *testing.T) {
	ts := newTestServer(t, options{})
	courseID, _ := createCourse(t, ts, "L1")

	rec, body := ts.do(t, http.MethodGet, "/api/courses", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["courses"].([]any)) != 0 {
		t.Fatalf("draft course listed: %v", body)
	}

	rec, _ = ts.do(t, http.MethodPatch, "/api/courses/"+courseID+"/publish", studentToken, map[string]bool{"isPublished": true})
	expectStatus(t, rec, http.StatusForbidden)
	rec, _ = ts.do(t, http.MethodPatch, "/api/courses/"+courseID+"/publish", instructorToken, map[string]any{})
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = ts.do(t, http.MethodPatch, "/api/courses/"+courseID+"/publish", instructorToken, map[string]bool{"isPublished": true})
	expectStatus(t, rec, http.StatusOK)

	rec, body = ts.do(t, http.MethodGet, "/api/courses?category=programming,design&sortBy=newest", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["courses"].([]any)) != 1 {
		t.Fatalf("published course not listed: %v", body)
	}
	rec, body = ts.do(t, http.MethodGet, "/api/courses?primaryLanguage=french", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["courses"].([]any)) != 0 {
		t.Fatalf("language filter ignored: %v", body)
	}

	rec, body = ts.do(t, http.MethodPut, "/api/courses/"+courseID, instructorToken, map[string]any{"title": "Renamed"})
	expectStatus(t, rec, http.StatusOK)
	if body["title"] != "Renamed" || body["isPublished"] != true {
		t.Fatalf("unexpected update result: %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/courses/instructor", instructorToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["courses"].([]any)) != 1 {
		t.Fatalf("unexpected instructor listing: %v", body)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/courses", studentToken, map[string]any{"title": "Nope"})
	expectStatus(t, rec, http.StatusForbidden)
	rec, _ = ts.do(t, http.MethodGet, "/api/courses/missing", studentToken, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = ts.do(t, http.MethodPost, "/api/courses/missing/enroll", studentToken, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec, _ = ts.do(t, http.MethodDelete, "/api/courses/"+courseID, instructorToken, nil)
	expectStatus(t, rec, http.StatusMethodNotAllowed)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, options{})
	rec, body := ts.do(t, http.MethodGet, "/api/courses/enrolled", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body["code"] != "unauthorized" {
		t.Fatalf("unexpected body: %v", body)
	}
	rec, body = ts.do(t, http.MethodGet, "/api/courses", "forged", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if strings.Contains(fmt.Sprint(body), "signature") {
		t.Fatalf("verifier detail leaked: %v", body)
	}
	rec, _ = ts.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestAnonymousCatalogReads(t *testing.T) {
	ts := newTestServer(t, options{})
	publishedID, _ := createCourse(t, ts, "L1")
	draftID, _ := createCourse(t, ts, "L1")
	rec, _ := ts.do(t, http.MethodPatch, "/api/courses/"+publishedID+"/publish", instructorToken, map[string]bool{"isPublished": true})
	expectStatus(t, rec, http.StatusOK)
	rec, _ = ts.do(t, http.MethodPost, "/api/courses/"+publishedID+"/enroll", studentToken, nil)
	expectStatus(t, rec, http.StatusCreated)

	rec, body := ts.do(t, http.MethodGet, "/api/courses", "", nil)
	expectStatus(t, rec, http.StatusOK)
	courses := body["courses"].([]any)
	if len(courses) != 1 {
		t.Fatalf("expected only the published course, got %v", courses)
	}
	if students := courses[0].(map[string]any)["students"].([]any); len(students) != 0 {
		t.Fatalf("roster exposed to anonymous caller: %v", students)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/courses/"+publishedID, "", nil)
	expectStatus(t, rec, http.StatusOK)
	if students := body["students"].([]any); len(students) != 0 {
		t.Fatalf("roster exposed to anonymous caller: %v", students)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/courses/"+draftID, "", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec, body = ts.do(t, http.MethodGet, "/api/courses/"+publishedID, instructorToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["students"].([]any)) != 1 {
		t.Fatalf("authenticated caller should see the roster: %v", body)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/courses", "", map[string]any{"title": "Anon"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec, _ = ts.do(t, http.MethodPut, "/api/courses/"+publishedID, "", map[string]any{"title": "Anon"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec, _ = ts.do(t, http.MethodGet, "/api/courses", "forged", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestUnexpectedErrorsAreGeneric(t *testing.T) {
	ts := newTestServer(t, options{data: brokenCourseStore{MemoryStore: store.NewMemoryStore()}})
	rec, body := ts.do(t, http.MethodGet, "/api/courses/any", studentToken, nil)
	expectStatus(t, rec, http.StatusInternalServerError)
	if body["error"] != "internal error" || body["code"] != "internal_error" {
		t.Fatalf("unexpected body: %v", body)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("cause leaked to client: %s", rec.Body.String())
	}
}

func TestQuizRoutes(t *testing.T) {
	ts := newTestServer(t, options{quizLimit: 1})

	rec, body := ts.do(t, http.MethodPost, "/api/quiz/generate", studentToken, map[string]string{"topic": "arithmetic"})
	expectStatus(t, rec, http.StatusOK)
	questions := body["questions"].([]any)
	if len(questions) != 1 || body["topic"] != "arithmetic" {
		t.Fatalf("unexpected quiz: %v", body)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/quiz/generate", studentToken, map[string]string{"topic": "arithmetic"})
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	rec, _ = ts.do(t, http.MethodPost, "/api/quiz/generate", instructorToken, map[string]string{"topic": "arithmetic"})
	expectStatus(t, rec, http.StatusOK)

	rec, body = ts.do(t, http.MethodPost, "/api/quiz/results", studentToken, map[string]any{
		"topic":     "arithmetic",
		"questions": questions,
		"answers":   map[string]string{"0": "4"},
		"score":     99,
	})
	expectStatus(t, rec, http.StatusCreated)
	if body["score"] != float64(1) || body["totalQuestions"] != float64(1) {
		t.Fatalf("unexpected result: %v", body)
	}

	rec, body = ts.do(t, http.MethodGet, "/api/quiz/results", studentToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if len(body["results"].([]any)) != 1 {
		t.Fatalf("unexpected results: %v", body)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/quiz/results", studentToken, map[string]any{"topic": "x"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", "intro"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(ts testServer, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/media/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndDeleteMedia(t *testing.T) {
	ts := newTestServer(t, options{})
	content := bytes.Repeat([]byte("frame"), 200)
	body, contentType := multipartBody(t, "file", "lesson.mp4", content)

	rec := upload(ts, instructorToken, body, contentType)
	expectStatus(t, rec, http.StatusCreated)
	var res app.MediaResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(res.PublicID, ".mp4") || res.URL != "http://cdn.test/media/"+res.PublicID {
		t.Fatalf("unexpected result: %+v", res)
	}
	if data, _, ok := ts.objects.Object("media/" + res.PublicID); !ok || !bytes.Equal(data, content) {
		t.Fatalf("stored object does not match upload")
	}

	rec, _ = ts.do(t, http.MethodDelete, "/api/media/"+res.PublicID, studentToken, nil)
	expectStatus(t, rec, http.StatusForbidden)
	rec, _ = ts.do(t, http.MethodDelete, "/api/media/not-an-id", instructorToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	rec, _ = ts.do(t, http.MethodDelete, "/api/media/"+res.PublicID, instructorToken, nil)
	expectStatus(t, rec, http.StatusNoContent)
	if ts.objects.Len() != 0 {
		t.Fatalf("object not deleted")
	}
}

func TestUploadRejections(t *testing.T) {
	ts := newTestServer(t, options{maxUpload: 1024})

	body, contentType := multipartBody(t, "file", "a.mp4", []byte("tiny"))
	rec := upload(ts, studentToken, body, contentType)
	expectStatus(t, rec, http.StatusForbidden)

	body, contentType = multipartBody(t, "attachment", "a.mp4", []byte("tiny"))
	rec = upload(ts, instructorToken, body, contentType)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = upload(ts, instructorToken, strings.NewReader(`{"file":"x"}`), "application/json")
	expectStatus(t, rec, http.StatusBadRequest)

	if ts.objects.Len() != 0 {
		t.Fatalf("rejected uploads reached storage")
	}
}

func TestUploadOverCeilingDeclaredLength(t *testing.T) {
	ts := newTestServer(t, options{maxUpload: 1024})
	body, contentType := multipartBody(t, "file", "big.mp4", bytes.Repeat([]byte("x"), 4096))

	rec := upload(ts, instructorToken, body, contentType)
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
	if ts.objects.Len() != 0 {
		t.Fatalf("storage touched for an oversized body")
	}
}

func TestUploadOverCeilingWhileStreaming(t *testing.T) {
	ts := newTestServer(t, options{maxUpload: 1024})
	body, contentType := multipartBody(t, "file", "big.mp4", bytes.Repeat([]byte("x"), 8192))

	// unknown length, so only the streaming limit applies
	rec := upload(ts, instructorToken, io.MultiReader(body), contentType)
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
	if ts.objects.Len() != 0 {
		t.Fatalf("partial upload was stored")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without app")
	}
	core, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Objects:   storage.NewMemoryStore(""),
		Generator: stubGenerator{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: core}); err == nil {
		t.Fatalf("expected error without verifier")
	}
	if _, err := New(Config{App: core, Verifier: staticVerifier{}}); err == nil {
		t.Fatalf("expected error without redis")
	}
}
