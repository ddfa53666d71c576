package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/sessions"
)

const (
	SessionCookieName = "social_session"
	sessionUserKey    = "user_id"
)

var ErrInvalidToken = errors.New("invalid token")

// Auth issues and checks both credential styles: bearer JWTs and the
// social_session cookie.
type Auth struct {
	secret []byte
	ttl    time.Duration
	store  *sessions.CookieStore
}

func NewAuth(jwtSecret, sessionKey string, ttl time.Duration, secureCookie bool) *Auth {
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	return &Auth{secret: []byte(jwtSecret), ttl: ttl, store: store}
}

func (a *Auth) IssueToken(userID int) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	return token.SignedString(a.secret)
}

// ParseToken returns the user id of a valid, unexpired token.
func (a *Auth) ParseToken(raw string) (int, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return id, nil
}

// StartSession sets the session cookie for userID.
func (a *Auth) StartSession(w http.ResponseWriter, r *http.Request, userID int) error {
	session, _ := a.store.Get(r, SessionCookieName)
	session.Values[sessionUserKey] = userID
	return session.Save(r, w)
}

// SessionUser reads the user id from the session cookie, if any.
func (a *Auth) SessionUser(r *http.Request) (int, bool) {
	session, err := a.store.Get(r, SessionCookieName)
	if err != nil || session.IsNew {
		return 0, false
	}
	id, ok := session.Values[sessionUserKey].(int)
	return id, ok && id > 0
}

func (a *Auth) EndSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := a.store.Get(r, SessionCookieName)
	session.Options.MaxAge = -1
	delete(session.Values, sessionUserKey)
	return session.Save(r, w)
}
