package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/mux"

	"projx.dev/social/services"
)

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusConflict, "Already friends with this user")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Already friends with this user", errorBody(t, rec))
}

func TestRequireAuth(t *testing.T) {
	auth := services.NewAuth("secret", "0123456789abcdef0123456789abcdef", time.Hour, false)
	var seen int
	handler := RequireAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = currentUserID(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feeds", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", errorBody(t, rec))

	token, _ := auth.IssueToken(5)
	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, seen)

	login := httptest.NewRecorder()
	auth.StartSession(login, httptest.NewRequest(http.MethodPost, "/api/login", nil), 6)
	req = httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.AddCookie(login.Result().Cookies()[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, seen)

	// a bad bearer header is not rescued by a valid cookie
	req = httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.Header.Set("Authorization", "Bearer nope")
	req.AddCookie(login.Result().Cookies()[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// The cases below are rejected before any query, so no database is needed.

func TestRegisterValidation(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"name":"","email":"a@b.c","password":"secret1"}`,
		`{"name":"Ada","email":"a@b.c","password":"123"}`,
	} {
		rec := httptest.NewRecorder()
		Register(nil)(rec, httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestGoogleLoginWithoutFirebase(t *testing.T) {
	auth := services.NewAuth("secret", "0123456789abcdef0123456789abcdef", time.Hour, false)
	rec := httptest.NewRecorder()
	GoogleLogin(nil, auth, services.VerifyIDToken)(rec, httptest.NewRequest(http.MethodPost, "/api/google-login",
		strings.NewReader(`{"id_token":"abc"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateCommentValidation(t *testing.T) {
	tests := []struct {
		id, body string
		want     int
	}{
		{"x", `{"text":"hi"}`, http.StatusBadRequest},
		{"42", `{"text":"   "}`, http.StatusBadRequest},
		{"42", `{"text":"` + strings.Repeat("a", maxCommentLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/posts/"+tt.id+"/comments", strings.NewReader(tt.body))
		req = mux.SetURLVars(req, map[string]string{"id": tt.id})
		rec := httptest.NewRecorder()
		CreateComment(nil)(rec, req)
		assert.Equal(t, tt.want, rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	for _, body := range []string{
		`{"receiver_id":2,"message":"  "}`,
		`{"receiver_id":0,"message":"hi"}`,
	} {
		rec := httptest.NewRecorder()
		SendMessage(nil, nil)(rec, httptest.NewRequest(http.MethodPost, "/api/messages/send", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestAcceptFriendRequestValidation(t *testing.T) {
	for _, body := range []string{`{"requestId":""}`, `{"requestId":"abc"}`, `{"requestId":"-3"}`} {
		rec := httptest.NewRecorder()
		AcceptFriendRequest(nil)(rec, httptest.NewRequest(http.MethodPost, "/api/accept-friend-request", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate(strings.Repeat("é", 20), 10))
}
