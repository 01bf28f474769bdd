package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/auth"
	"github.com/yourusername/paper-press/internal/repository"
)

type stubUploader struct {
	record *repository.FileRecord
	err    error
	called bool
}

func (s *stubUploader) SaveUploadedImage(ctx context.Context, file *multipart.FileHeader, ownerID int64) (*repository.FileRecord, error) {
	s.called = true
	return s.record, s.err
}

type stubMergeChecker struct {
	err error
}

func (s *stubMergeChecker) CheckMergeInputs(ctx context.Context, fileIDs []int64, ownerID int64, superuser bool) error {
	return s.err
}

type stubScheduler struct {
	taskID       string
	err          error
	gotFileID    int64
	gotFileIDs   []int64
	gotFilename  string
	gotOwnerID   int64
	gotSuperuser bool
}

func (s *stubScheduler) SubmitConvert(ctx context.Context, fileID, ownerID int64) (string, error) {
	s.gotFileID = fileID
	s.gotOwnerID = ownerID
	return s.taskID, s.err
}

func (s *stubScheduler) SubmitMerge(ctx context.Context, fileIDs []int64, outputFilename string, ownerID int64, superuser bool) (string, error) {
	s.gotFileIDs = fileIDs
	s.gotFilename = outputFilename
	s.gotOwnerID = ownerID
	s.gotSuperuser = superuser
	return s.taskID, s.err
}

func requestUser(user *repository.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextUserKey, user)
	}
}

func multipartImageBody(t *testing.T, fieldName, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader(data)); err != nil {
		t.Fatalf("failed to write file data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadImageHandlerSubmitsTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uploader := &stubUploader{record: &repository.FileRecord{ID: 8, Filename: "photo.png"}}
	scheduler := &stubScheduler{taskID: "task-1"}

	router := gin.New()
	router.POST("/files/upload-image",
		requestUser(&repository.User{ID: 2, IsActive: true}),
		UploadImageHandler(uploader, scheduler, 0),
	)

	body, contentType := multipartImageBody(t, "file", "photo.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/files/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload struct {
		TaskID string `json:"task_id"`
		FileID int64  `json:"file_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.TaskID != "task-1" || payload.FileID != 8 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if scheduler.gotFileID != 8 || scheduler.gotOwnerID != 2 {
		t.Fatalf("scheduler received wrong args: fileID=%d ownerID=%d", scheduler.gotFileID, scheduler.gotOwnerID)
	}
}

func TestUploadImageHandlerRequiresFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uploader := &stubUploader{}

	router := gin.New()
	router.POST("/files/upload-image",
		requestUser(&repository.User{ID: 2}),
		UploadImageHandler(uploader, &stubScheduler{}, 0),
	)

	req := httptest.NewRequest(http.MethodPost, "/files/upload-image", strings.NewReader(""))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if uploader.called {
		t.Fatal("uploader must not be called without a file")
	}
}

func TestUploadImageHandlerRejectsOversizedFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uploader := &stubUploader{}

	router := gin.New()
	router.POST("/files/upload-image",
		requestUser(&repository.User{ID: 2}),
		UploadImageHandler(uploader, &stubScheduler{}, 4),
	)

	body, contentType := multipartImageBody(t, "file", "big.png", []byte("more-than-four-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/files/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if uploader.called {
		t.Fatal("uploader must not be called for oversized files")
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestUploadImageHandlerRejectsNonImage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	uploader := &stubUploader{
		err: newError(KindValidation, "画像ファイルのみアップロードできます。", nil),
	}

	router := gin.New()
	router.POST("/files/upload-image",
		requestUser(&repository.User{ID: 2}),
		UploadImageHandler(uploader, &stubScheduler{}, 0),
	)

	body, contentType := multipartImageBody(t, "file", "doc.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/files/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != string(KindValidation) {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestUploadImageHandlerRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/files/upload-image", UploadImageHandler(&stubUploader{}, &stubScheduler{}, 0))

	body, contentType := multipartImageBody(t, "file", "photo.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/files/upload-image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func postMerge(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pdfs/merge", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMergeHandlerSubmitsTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	scheduler := &stubScheduler{taskID: "task-2"}

	router := gin.New()
	router.POST("/pdfs/merge",
		requestUser(&repository.User{ID: 2, IsSuperuser: true}),
		MergeHandler(&stubMergeChecker{}, scheduler),
	)

	rec := postMerge(router, `{"file_ids":[3,1,2],"output_filename":"merged.pdf"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["task_id"] != "task-2" {
		t.Fatalf("unexpected task_id: %s", payload["task_id"])
	}
	if len(scheduler.gotFileIDs) != 3 || scheduler.gotFileIDs[0] != 3 || scheduler.gotFileIDs[1] != 1 || scheduler.gotFileIDs[2] != 2 {
		t.Fatalf("file id order not preserved: %v", scheduler.gotFileIDs)
	}
	if scheduler.gotFilename != "merged.pdf" || !scheduler.gotSuperuser {
		t.Fatalf("unexpected submit args: filename=%s superuser=%v", scheduler.gotFilename, scheduler.gotSuperuser)
	}
}

func TestMergeHandlerRejectsEmptyFileIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := &stubMergeChecker{
		err: newError(KindValidation, "No files provided to merge.", nil),
	}

	router := gin.New()
	router.POST("/pdfs/merge",
		requestUser(&repository.User{ID: 2}),
		MergeHandler(checker, &stubScheduler{}),
	)

	rec := postMerge(router, `{"file_ids":[],"output_filename":"merged.pdf"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != string(KindValidation) {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestMergeHandlerMapsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := &stubMergeChecker{
		err: newError(KindNotFound, "File with ID 999999 not found", nil),
	}

	router := gin.New()
	router.POST("/pdfs/merge",
		requestUser(&repository.User{ID: 2}),
		MergeHandler(checker, &stubScheduler{}),
	)

	rec := postMerge(router, `{"file_ids":[999999],"output_filename":"merged.pdf"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "999999") {
		t.Fatalf("expected message to name the file id: %s", rec.Body.String())
	}
}

func TestMergeHandlerMapsForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := &stubMergeChecker{
		err: newError(KindForbidden, "Not authorized to access file with ID 5", nil),
	}

	router := gin.New()
	router.POST("/pdfs/merge",
		requestUser(&repository.User{ID: 2}),
		MergeHandler(checker, &stubScheduler{}),
	)

	rec := postMerge(router, `{"file_ids":[5],"output_filename":"merged.pdf"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestMergeHandlerRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/pdfs/merge",
		requestUser(&repository.User{ID: 2}),
		MergeHandler(&stubMergeChecker{}, &stubScheduler{}),
	)

	rec := postMerge(router, `{"output_filename":"merged.pdf"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
