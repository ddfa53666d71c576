package media

import (
	"context"
	"fmt"
	"os"

	"github.com/golang/glog"

	"projx.dev/social/client"
	"projx.dev/social/models"
)

// Backend is the part of the REST client the uploader needs.
type Backend interface {
	Upload(ctx context.Context, f *client.File) (models.UploadResult, error)
}

type Uploader struct {
	backend Backend
}

func NewUploader(backend Backend) *Uploader {
	return &Uploader{backend: backend}
}

// Upload sends the preview's file and resolves the preview to the stored url.
// On failure the preview is left untouched.
func (u *Uploader) Upload(ctx context.Context, p *Preview) (models.UploadResult, error) {
	if p.Uploaded {
		return models.UploadResult{MediaURL: p.URL, MediaType: string(p.Kind)}, nil
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("open %s: %w", p.Name, err)
	}
	defer f.Close()

	res, err := u.backend.Upload(ctx, &client.File{
		Name:        p.Name,
		ContentType: p.ContentType,
		Body:        f,
	})
	if err != nil {
		glog.Errorf("[media] upload of %s failed: %v", p.Name, err)
		return models.UploadResult{}, err
	}
	if res.MediaURL == "" {
		return models.UploadResult{}, fmt.Errorf("upload of %s returned no media url", p.Name)
	}
	if res.MediaType == "" {
		res.MediaType = string(p.Kind)
	}
	p.Resolve(res.MediaURL, Kind(res.MediaType))
	return res, nil
}

// File opens the preview as a multipart attachment. The caller closes it.
func (p *Preview) File() (*client.File, func() error, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, nil, err
	}
	return &client.File{Name: p.Name, ContentType: p.ContentType, Body: f}, f.Close, nil
}
