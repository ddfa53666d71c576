package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"

	"projx.dev/social/config"
)

// Client issues authenticated REST calls against the backend.
type Client struct {
	baseURL      *url.URL
	mediaBaseURL string
	httpClient   *http.Client
	session      *Session
}

// File is an attachment for multipart calls.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

func New(cfg *config.Client) (*Client, error) {
	baseURL, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", cfg.APIBaseURL, err)
	}
	session := NewSession(NewAuthStrategy(cfg.AuthStyle, baseURL))
	return NewWithSession(cfg, session)
}

func NewWithSession(cfg *config.Client, session *Session) (*Client, error) {
	baseURL, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", cfg.APIBaseURL, err)
	}
	mediaBaseURL := cfg.MediaBaseURL
	if mediaBaseURL == "" {
		mediaBaseURL = cfg.APIBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		mediaBaseURL: strings.TrimRight(mediaBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Jar:     session.Auth().Jar(),
		},
		session: session,
	}, nil
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// WebsocketURL is the realtime endpoint derived from the api base url.
func (c *Client) WebsocketURL() string {
	u := c.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// MediaURL resolves a backend-relative media path. Absolute urls pass through.
func (c *Client) MediaURL(path string) string {
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return c.mediaBaseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, http.MethodPost, path, body, contentType, out)
}

// postMultipart sends fields and files as multipart/form-data. Nil files are
// skipped.
func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, files map[string]*File, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	for field, f := range files {
		if f == nil {
			continue
		}
		part, err := createFilePart(w, field, f)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, &buf, w.FormDataContentType(), out)
}

func createFilePart(w *multipart.Writer, field string, f *File) (io.Writer, error) {
	if f.ContentType == "" {
		return w.CreateFormFile(field, f.Name)
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(f.Name)),
	}
	h["Content-Type"] = []string{f.ContentType}
	return w.CreatePart(h)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	c.session.Auth().Authorize(req.Header)

	op := method + " " + path
	resp, err := c.httpClient.Do(req)
	if err != nil {
		glog.V(2).Infof("[api] %s transport error: %v", op, err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	glog.V(2).Infof("[api] %s -> %d (%d bytes)", op, resp.StatusCode, len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
		if resp.StatusCode == http.StatusUnauthorized {
			c.session.unauthorized(loginPrompt(apiErr.Message))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts the backend's message from {"error"} or {"message"}
// bodies, falling back to plain text.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func loginPrompt(message string) string {
	if message == "" {
		return "Your session has expired. Please log in again."
	}
	return message + ". Please log in again."
}
