package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"projx.dev/social/services"
)

type ctxKey int

const userIDKey ctxKey = iota

// RequireAuth accepts a bearer JWT or the session cookie, in that order.
func RequireAuth(auth *services.Auth) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := authenticate(auth, r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(auth *services.Auth, r *http.Request) (int, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return 0, false
		}
		id, err := auth.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			glog.V(2).Infof("[auth] rejected bearer token: %v", err)
			return 0, false
		}
		return id, true
	}
	return auth.SessionUser(r)
}

func currentUserID(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= 500 {
			glog.Errorf("[http] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
			return
		}
		glog.V(2).Infof("[http] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
