package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/repository"
	"github.com/yourusername/paper-press/internal/storage"
)

func testStorage(t *testing.T) *storage.Storage {
	t.Helper()
	base := t.TempDir()
	st, err := storage.New(filepath.Join(base, "uploads"), filepath.Join(base, "temp"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return st
}

func fileRouter(user *repository.User, files repository.FileRepository, st *storage.Storage) *gin.Engine {
	router := gin.New()
	router.GET("/files", requestUser(user), fileListHandler(files))
	router.GET("/files/:file_id", requestUser(user), fileDownloadHandler(files, st))
	router.DELETE("/files/:file_id", requestUser(user), fileDeleteHandler(files))
	return router
}

func TestFileDownloadHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := testStorage(t)

	path := filepath.Join(t.TempDir(), "out.pdf")
	content := []byte("%PDF-1.4 test payload")
	if err := os.WriteFile(path, content, 0o640); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	contentType := "application/pdf"
	files := newStubFileRepo()
	files.records[5] = &repository.FileRecord{
		ID:          5,
		Filename:    "out.pdf",
		Filepath:    path,
		ContentType: &contentType,
		OwnerID:     2,
	}
	router := fileRouter(&repository.User{ID: 2}, files, st)

	req := httptest.NewRequest(http.MethodGet, "/files/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type: %s", got)
	}
	want := `attachment; filename="out.pdf"; filename*=UTF-8''out.pdf`
	if got := rec.Header().Get("Content-Disposition"); got != want {
		t.Fatalf("unexpected disposition: %s", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("unexpected cache control: %s", got)
	}
	if rec.Body.String() != string(content) {
		t.Fatalf("body does not match stored file")
	}
}

func TestFileDownloadHandlerForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	files.records[5] = &repository.FileRecord{ID: 5, Filename: "out.pdf", OwnerID: 9}
	router := fileRouter(&repository.User{ID: 2}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["message"] != "Not authorized to access file with ID 5" {
		t.Fatalf("unexpected message: %s", payload["message"])
	}
}

func TestFileDownloadHandlerMissingRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := fileRouter(&repository.User{ID: 2}, newStubFileRepo(), testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestFileDownloadHandlerMissingStoredFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	// レコードは残っているが実体ファイルが存在しないケース
	files.records[5] = &repository.FileRecord{
		ID:       5,
		Filename: "out.pdf",
		Filepath: filepath.Join(t.TempDir(), "gone.pdf"),
		OwnerID:  2,
	}
	router := fileRouter(&repository.User{ID: 2}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestFileDownloadHandlerRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := fileRouter(&repository.User{ID: 2}, newStubFileRepo(), testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestFileListHandlerDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	files.listed = []*repository.FileRecord{
		{ID: 1, Filename: "a.pdf", Filepath: "/data/2/a.pdf", OwnerID: 2},
		{ID: 2, Filename: "b.pdf", Filepath: "/data/2/b.pdf", OwnerID: 2},
	}
	router := fileRouter(&repository.User{ID: 2}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if files.gotOwner != 2 || files.gotSkip != 0 || files.gotLimit != defaultListLimit {
		t.Fatalf("unexpected query args: owner=%d skip=%d limit=%d", files.gotOwner, files.gotSkip, files.gotLimit)
	}

	var payload []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("unexpected record count: %d", len(payload))
	}
	// 実体パスはレスポンスに漏らさない
	if strings.Contains(rec.Body.String(), "/data/2/a.pdf") {
		t.Fatalf("response must not expose filepath: %s", rec.Body.String())
	}
}

func TestFileListHandlerSuperuserSeesAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	files.listedAll = []*repository.FileRecord{
		{ID: 1, Filename: "a.pdf", OwnerID: 2},
		{ID: 2, Filename: "b.pdf", OwnerID: 9},
	}
	router := fileRouter(&repository.User{ID: 1, IsSuperuser: true}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files?skip=10&limit=50", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if files.gotOwner != 0 {
		t.Fatalf("superuser listing must not filter by owner")
	}
	if files.gotSkip != 10 || files.gotLimit != 50 {
		t.Fatalf("unexpected pagination: skip=%d limit=%d", files.gotSkip, files.gotLimit)
	}

	var payload []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("unexpected record count: %d", len(payload))
	}
}

func TestFileListHandlerEmptyIsArray(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := fileRouter(&repository.User{ID: 2}, newStubFileRepo(), testStorage(t))

	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty listing must be an array, got %s", rec.Body.String())
	}
}

func TestFileListHandlerRejectsBadParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name  string
		query string
	}{
		{name: "negative skip", query: "skip=-1"},
		{name: "zero limit", query: "limit=0"},
		{name: "limit above maximum", query: "limit=1001"},
		{name: "non numeric skip", query: "skip=abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := fileRouter(&repository.User{ID: 2}, newStubFileRepo(), testStorage(t))
			req := httptest.NewRequest(http.MethodGet, "/files?"+tc.query, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
		})
	}
}

func TestFileDeleteHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	files.records[5] = &repository.FileRecord{ID: 5, Filename: "out.pdf", OwnerID: 2}
	router := fileRouter(&repository.User{ID: 2}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodDelete, "/files/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(files.deleted) != 1 || files.deleted[0] != 5 {
		t.Fatalf("unexpected deletions: %v", files.deleted)
	}
}

func TestFileDeleteHandlerForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	files := newStubFileRepo()
	files.records[5] = &repository.FileRecord{ID: 5, Filename: "out.pdf", OwnerID: 9}
	router := fileRouter(&repository.User{ID: 2}, files, testStorage(t))

	req := httptest.NewRequest(http.MethodDelete, "/files/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(files.deleted) != 0 {
		t.Fatalf("foreign file must not be deleted: %v", files.deleted)
	}
}
