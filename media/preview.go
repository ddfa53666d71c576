// Package media turns a local file selection into a preview and, on submit,
// into a url stored by the backend.
package media

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang/glog"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// KindOf maps a content type to a media kind.
func KindOf(contentType string) Kind {
	major, _, _ := strings.Cut(contentType, "/")
	switch major {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	}
	return KindFile
}

// KindFromPath guesses the kind from a file name or url alone, the way the
// feed decides between a video player and an image.
func KindFromPath(path string) Kind {
	if u, err := url.Parse(path); err == nil && u.Path != "" {
		path = u.Path
	}
	return KindOf(typeByExtension(path))
}

// common media extensions, so detection does not depend on the host's mime.types
var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".heic": "image/heic",
}

func typeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

// Preview is a selected file before upload. URL starts as a local file url
// and is replaced by the persisted url once the upload succeeds.
type Preview struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
	Kind        Kind
	URL         string
	Uploaded    bool
}

// NewPreview inspects a local file. It never touches the network.
func NewPreview(path string) (*Preview, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType := ""
	if detected, err := mimetype.DetectFile(path); err == nil {
		contentType = detected.String()
	} else {
		glog.V(1).Infof("[media] sniffing %s failed: %v", path, err)
	}
	kind := KindOf(contentType)
	if kind == KindFile {
		// plain text or octet-stream sniffs are weaker than a known extension
		if byExt := typeByExtension(path); KindOf(byExt) != KindFile {
			contentType = byExt
			kind = KindOf(byExt)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Preview{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: stripParams(contentType),
		Kind:        kind,
		URL:         (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
	}, nil
}

func stripParams(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}

// Resolve swaps the local preview for the persisted url.
func (p *Preview) Resolve(persistedURL string, kind Kind) {
	p.URL = persistedURL
	if kind != "" {
		p.Kind = kind
	}
	p.Uploaded = true
}
