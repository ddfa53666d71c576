package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"projx.dev/social/models"
	"projx.dev/social/services"
)

const userColumns = `id, name, email, picture, description, location, created_at`

func scanUser(row interface{ Scan(...interface{}) error }, u *models.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.Picture, &u.Description, &u.Location, &u.CreatedAt)
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func Register(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Name == "" || req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Name, email and password are required")
			return
		}
		if len(req.Password) < 6 {
			writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		var u models.User
		err = scanUser(db.QueryRow(`
			INSERT INTO users (name, email, password)
			VALUES ($1, $2, $3)
			RETURNING `+userColumns,
			req.Name, req.Email, string(hashed)), &u)
		if pqCode(err) == codeUniqueViolation {
			writeError(w, http.StatusConflict, "Email is already registered")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create user")
			glog.Errorf("[auth] register: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, u)
	}
}

// issueLogin sets the session cookie and answers with the bearer token, so
// either credential style works after one login.
func issueLogin(w http.ResponseWriter, r *http.Request, auth *services.Auth, u models.User) {
	token, err := auth.IssueToken(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		glog.Errorf("[auth] issue token: %v", err)
		return
	}
	if err := auth.StartSession(w, r, u.ID); err != nil {
		glog.Errorf("[auth] start session for user %d: %v", u.ID, err)
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{AccessToken: token, User: u})
}

func Login(db *sql.DB, auth *services.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var u models.User
		var hashed sql.NullString
		err := db.QueryRow(`SELECT `+userColumns+`, password FROM users WHERE email = $1`,
			strings.ToLower(strings.TrimSpace(req.Email))).
			Scan(&u.ID, &u.Name, &u.Email, &u.Picture, &u.Description, &u.Location, &u.CreatedAt, &hashed)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database query failed")
			glog.Errorf("[auth] login: %v", err)
			return
		}
		// google-only accounts have no password
		if !hashed.Valid || bcrypt.CompareHashAndPassword([]byte(hashed.String), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}

		issueLogin(w, r, auth, u)
	}
}

// GoogleLogin signs in with a Firebase ID token, creating the user on first
// use. An existing account with the same email is linked only when the
// provider has verified that address.
func GoogleLogin(db *sql.DB, auth *services.Auth, verify services.IdentityVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDToken string `json:"id_token"`
		}
		if err := decodeJSON(r, &req); err != nil || req.IDToken == "" {
			writeError(w, http.StatusBadRequest, "id_token is required")
			return
		}

		identity, err := verify(r.Context(), req.IDToken)
		if errors.Is(err, services.ErrFirebaseDisabled) {
			writeError(w, http.StatusServiceUnavailable, "Google sign-in is not available")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid Google token")
			glog.Warningf("[auth] google token rejected: %v", err)
			return
		}
		if identity.Email == "" {
			writeError(w, http.StatusBadRequest, "Google account has no email")
			return
		}
		if !identity.EmailVerified {
			writeError(w, http.StatusUnauthorized, "Google email is not verified")
			glog.Warningf("[auth] google login for unverified %s refused", identity.Email)
			return
		}
		name := identity.Name
		if name == "" {
			name, _, _ = strings.Cut(identity.Email, "@")
		}

		var u models.User
		err = scanUser(db.QueryRow(`
			INSERT INTO users (name, email, firebase_uid, picture)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO UPDATE
			SET firebase_uid = EXCLUDED.firebase_uid,
			    picture = CASE WHEN users.picture = '' THEN EXCLUDED.picture ELSE users.picture END
			RETURNING `+userColumns,
			name, strings.ToLower(identity.Email), identity.UID, identity.Picture), &u)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to sign in")
			glog.Errorf("[auth] google login upsert: %v", err)
			return
		}

		issueLogin(w, r, auth, u)
	}
}

func Logout(auth *services.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := auth.EndSession(w, r); err != nil {
			glog.Errorf("[auth] end session: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}
