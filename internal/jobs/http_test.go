package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubStorage struct {
	baseDir string
	err     error
	saved   []string
}

func (s *stubStorage) SaveUpload(r io.Reader, originalName string) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	path := filepath.Join(s.baseDir, originalName)
	f, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", "", err
	}
	s.saved = append(s.saved, originalName)
	return path, "application/octet-stream", nil
}

func newUploadRouter(registry *Registry, store UploadStorage, maxFileSize int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/upload", UploadHandler(registry, store, maxFileSize, log.New(io.Discard, "", 0)))
	return r
}

func newJobRouter(registry *Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/status/:id", StatusHandler(registry))
	r.GET("/api/download/:id", DownloadHandler(registry))
	r.GET("/api/jobs", ListHandler(registry))
	r.POST("/api/jobs/clear", ClearHandler(registry, log.New(io.Discard, "", 0)))
	return r
}

// multipartUpload は file フィールドにファイルを1つ載せたリクエストを作ります。
func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return payload
}

func TestUploadHandlerQueuesJob(t *testing.T) {
	registry := NewRegistry()
	store := &stubStorage{baseDir: t.TempDir()}
	router := newUploadRouter(registry, store, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "契約書.hwp", []byte("hwp payload")))

	if w.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d (%s)", w.Code, w.Body.String())
	}
	payload := decodeJSON(t, w)
	jobID, _ := payload["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected jobId in response")
	}
	if payload["status"] != string(StatusPending) {
		t.Fatalf("unexpected status in response: %v", payload["status"])
	}

	job, ok := registry.Get(jobID)
	if !ok {
		t.Fatal("job not registered")
	}
	if job.Status != StatusPending {
		t.Fatalf("unexpected job status: %s", job.Status)
	}
	if job.SourceFilename != "契約書.hwp" {
		t.Fatalf("unexpected source filename: %s", job.SourceFilename)
	}
	if _, err := os.Stat(job.SourcePath); err != nil {
		t.Fatalf("source file not saved: %v", err)
	}
}

func TestUploadHandlerRejectsUnsupportedExtension(t *testing.T) {
	registry := NewRegistry()
	store := &stubStorage{baseDir: t.TempDir()}
	router := newUploadRouter(registry, store, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "archive.zip", []byte("zip payload")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "UNSUPPORTED_TYPE" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
	if len(store.saved) != 0 {
		t.Fatal("rejected upload must not be saved")
	}
	if jobs := registry.All(); len(jobs) != 0 {
		t.Fatalf("rejected upload must not create a job, got %d", len(jobs))
	}
}

func TestUploadHandlerRequiresFileField(t *testing.T) {
	registry := NewRegistry()
	router := newUploadRouter(registry, &stubStorage{baseDir: t.TempDir()}, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("not multipart"))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "INVALID_INPUT" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestUploadHandlerEnforcesSizeLimit(t *testing.T) {
	registry := NewRegistry()
	router := newUploadRouter(registry, &stubStorage{baseDir: t.TempDir()}, 16)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "big.docx", bytes.Repeat([]byte("x"), 64)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestUploadHandlerReportsStorageFailure(t *testing.T) {
	registry := NewRegistry()
	store := &stubStorage{err: errors.New("disk full")}
	router := newUploadRouter(registry, store, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "report.odt", []byte("odt payload")))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "STORAGE_FAILED" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
	if jobs := registry.All(); len(jobs) != 0 {
		t.Fatal("storage failure must not create a job")
	}
}

func TestStatusHandlerUnknownJob(t *testing.T) {
	router := newJobRouter(NewRegistry())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/no-such-job", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestStatusHandlerReflectsJobState(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	job := registry.Insert("memo.hwpx", "/tmp/memo/source.hwpx")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/"+job.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	payload := decodeJSON(t, w)
	if payload["status"] != string(StatusPending) {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if _, exists := payload["error"]; exists {
		t.Fatal("pending job must not expose an error field")
	}
	if _, exists := payload["completedAt"]; exists {
		t.Fatal("pending job must not expose completedAt")
	}

	if err := registry.UpdateStatus(job.ID, StatusProcessing, "", ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if err := registry.UpdateStatus(job.ID, StatusFailed, "", "CONVERSION_FAILED: 変換に失敗しました"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/"+job.ID, nil))
	payload = decodeJSON(t, w)
	if payload["status"] != string(StatusFailed) {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "CONVERSION_FAILED") {
		t.Fatalf("expected recorded error, got %v", payload["error"])
	}
	if _, exists := payload["completedAt"]; !exists {
		t.Fatal("failed job should expose completedAt")
	}
}

func TestDownloadHandlerWhileInProgress(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	job := registry.Insert("slow.docx", "/tmp/slow/source.docx")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/download/"+job.ID, nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "CONVERSION_IN_PROGRESS" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestDownloadHandlerFailedJob(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	job := registry.Insert("broken.hwp", "/tmp/broken/source.hwp")
	if err := registry.UpdateStatus(job.ID, StatusProcessing, "", ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if err := registry.UpdateStatus(job.ID, StatusFailed, "", "INIT_FAILED: 変換エンジンを初期化できませんでした"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/download/"+job.ID, nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	payload := decodeJSON(t, w)
	if payload["code"] != "CONVERSION_FAILED" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "INIT_FAILED") {
		t.Fatalf("expected recorded error detail, got %v", payload["message"])
	}
}

func TestDownloadHandlerServesCompletedPDF(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	outputPath := filepath.Join(t.TempDir(), "output.pdf")
	content := []byte("%PDF-1.4 converted body")
	if err := os.WriteFile(outputPath, content, 0o640); err != nil {
		t.Fatalf("failed to write output: %v", err)
	}

	job := registry.Insert("議事録.hwp", "/tmp/minutes/source.hwp")
	if err := registry.UpdateStatus(job.ID, StatusProcessing, "", ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if err := registry.UpdateStatus(job.ID, StatusCompleted, outputPath, ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/download/"+job.ID, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	disposition := w.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "議事録.pdf") {
		t.Fatalf("download name should swap the extension to .pdf: %s", disposition)
	}
	if w.Header().Get("X-Job-Id") != job.ID {
		t.Fatalf("unexpected X-Job-Id: %s", w.Header().Get("X-Job-Id"))
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("response body does not match the converted file")
	}
}

func TestDownloadHandlerMissingOutputFile(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	job := registry.Insert("gone.odt", "/tmp/gone/source.odt")
	if err := registry.UpdateStatus(job.ID, StatusProcessing, "", ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "output.pdf")
	if err := registry.UpdateStatus(job.ID, StatusCompleted, missing, ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/download/"+job.ID, nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if payload := decodeJSON(t, w); payload["code"] != "RESULT_NOT_FOUND" {
		t.Fatalf("unexpected error code: %v", payload["code"])
	}
}

func TestListAndClearHandlers(t *testing.T) {
	registry := NewRegistry()
	router := newJobRouter(registry)

	registry.Insert("a.hwp", "/tmp/a/source.hwp")
	registry.Insert("b.odt", "/tmp/b/source.odt")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	var items []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("unexpected job count: %d", len(items))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs/clear", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("unexpected status code: %d", w.Code)
	}
	if remaining := registry.All(); len(remaining) != 0 {
		t.Fatalf("registry not cleared: %d jobs remain", len(remaining))
	}
}
