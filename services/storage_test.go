package services

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestSaveSniffsContent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewMediaStore(dir)
	assert.Equal(t, err, nil)

	res, err := store.Save(bytes.NewReader(pngHeader), "upload.bin")
	assert.Equal(t, err, nil)
	assert.Equal(t, "image", res.MediaType)
	assert.Equal(t, true, strings.HasPrefix(res.MediaURL, "static/"))
	assert.Equal(t, ".png", filepath.Ext(res.MediaURL))

	data, err := os.ReadFile(filepath.Join(dir, filepath.Base(res.MediaURL)))
	assert.Equal(t, err, nil)
	assert.Equal(t, pngHeader, data)
}

func TestSaveFallsBackToName(t *testing.T) {
	store, _ := NewMediaStore(t.TempDir())

	res, err := store.Save(strings.NewReader("not a real video"), "clip.mp4")
	assert.Equal(t, err, nil)
	assert.Equal(t, "video", res.MediaType)
	assert.Equal(t, ".mp4", filepath.Ext(res.MediaURL))

	res, err = store.Save(strings.NewReader("plain notes"), "notes.txt")
	assert.Equal(t, err, nil)
	assert.Equal(t, "file", res.MediaType)
}

func TestSaveNamesAreUnique(t *testing.T) {
	store, _ := NewMediaStore(t.TempDir())
	a, _ := store.Save(bytes.NewReader(pngHeader), "a.png")
	b, _ := store.Save(bytes.NewReader(pngHeader), "a.png")
	assert.NotEqual(t, a.MediaURL, b.MediaURL)
}

func TestSaveRejectsEmpty(t *testing.T) {
	store, _ := NewMediaStore(t.TempDir())
	_, err := store.Save(bytes.NewReader(nil), "empty.png")
	assert.NotEqual(t, err, nil)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func pngOfSize(size int64) io.Reader {
	return io.MultiReader(bytes.NewReader(pngHeader), io.LimitReader(zeros{}, size-int64(len(pngHeader))))
}

func TestSaveRejectsOversized(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewMediaStore(dir)

	_, err := store.Save(pngOfSize(MaxUploadSize+1000), "big.png")
	assert.Equal(t, true, errors.Is(err, ErrTooLarge))

	entries, err := os.ReadDir(dir)
	assert.Equal(t, err, nil)
	assert.Equal(t, 0, len(entries))
}

func TestSaveAcceptsExactLimit(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewMediaStore(dir)

	res, err := store.Save(pngOfSize(MaxUploadSize), "limit.png")
	assert.Equal(t, err, nil)

	info, err := os.Stat(filepath.Join(dir, filepath.Base(res.MediaURL)))
	assert.Equal(t, err, nil)
	assert.Equal(t, int64(MaxUploadSize), info.Size())
}
