package handlers

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/assert/v2"

	"projx.dev/social/services"
)

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// multipartFile streams a form with a single file part of the given size.
func multipartFile(field, name string, size int64) (*io.PipeReader, string) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile(field, name)
		if err == nil {
			png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
			_, err = io.Copy(part, io.MultiReader(bytes.NewReader(png), io.LimitReader(zeros{}, size-int64(len(png)))))
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, form.FormDataContentType()
}

func TestUploadMediaRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	store, err := services.NewMediaStore(dir)
	assert.Equal(t, err, nil)

	body, contentType := multipartFile("file", "big.png", services.MaxUploadSize+1000)
	defer body.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	UploadMedia(store)(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large", errorBody(t, rec))
	entries, _ := os.ReadDir(dir)
	assert.Equal(t, 0, len(entries))
}

func TestUploadMediaRejectsOversizedBody(t *testing.T) {
	store, _ := services.NewMediaStore(t.TempDir())

	body, contentType := multipartFile("file", "huge.png", services.MaxUploadSize+2*uploadOverhead)
	defer body.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	UploadMedia(store)(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadMediaStoresFile(t *testing.T) {
	store, _ := services.NewMediaStore(t.TempDir())

	body, contentType := multipartFile("file", "pic.png", 4096)
	defer body.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	UploadMedia(store)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
