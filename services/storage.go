package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"projx.dev/social/media"
	"projx.dev/social/models"
)

// MaxUploadSize bounds a single stored file.
const MaxUploadSize = 50 << 20

// ErrTooLarge is returned by Save when the content exceeds MaxUploadSize.
// Nothing is kept on disk in that case.
var ErrTooLarge = errors.New("file exceeds upload limit")

// MediaStore keeps uploaded files on local disk, served under /static/.
type MediaStore struct {
	dir string
}

func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &MediaStore{dir: dir}, nil
}

func (s *MediaStore) Dir() string { return s.dir }

// Save stores the content under a fresh name and returns its relative url.
// The kind comes from the bytes, not from the client's file name.
func (s *MediaStore) Save(r io.Reader, originalName string) (models.UploadResult, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return models.UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return models.UploadResult{}, fmt.Errorf("empty file")
	}

	mt := mimetype.Detect(head)
	kind := media.KindOf(mt.String())
	ext := mt.Extension()
	if kind == media.KindFile {
		// sniffing says nothing useful, keep the client's extension if it names media
		if byName := media.KindFromPath(originalName); byName != media.KindFile {
			kind = byName
			ext = filepath.Ext(originalName)
		}
	}
	if ext == "" {
		ext = filepath.Ext(originalName)
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("create %s: %w", name, err)
	}
	defer dst.Close()

	// one byte past the limit tells an exact-size file from an oversized one
	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), io.LimitReader(r, MaxUploadSize-int64(n)+1)))
	if err == nil && written > MaxUploadSize {
		err = ErrTooLarge
	}
	if err != nil {
		dst.Close()
		os.Remove(dst.Name())
		if errors.Is(err, ErrTooLarge) {
			return models.UploadResult{}, err
		}
		return models.UploadResult{}, fmt.Errorf("write %s: %w", name, err)
	}
	glog.V(2).Infof("[media] stored %s as %s (%s, %d bytes)", originalName, name, mt.String(), written)

	return models.UploadResult{
		MediaURL:  path.Join("static", name),
		MediaType: string(kind),
	}, nil
}
