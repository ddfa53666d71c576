package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"projx.dev/social/media"
	"projx.dev/social/models"
	"projx.dev/social/services"
)

func GetCurrentUser(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.User
		err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, currentUserID(r)), &u)
		if err == sql.ErrNoRows {
			// the account behind a still-valid credential is gone
			writeError(w, http.StatusUnauthorized, "User no longer exists")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database query failed")
			glog.Errorf("[users] current user: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func GetUserById(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		var u models.User
		err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id), &u)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database query failed")
			glog.Errorf("[users] get user %d: %v", id, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// GetUsers lists people the caller could befriend: not themselves, not
// already friends.
func GetUsers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT `+userColumns+` FROM users u
			WHERE u.id != $1
			  AND NOT EXISTS (SELECT 1 FROM friendships f WHERE f.user_id = $1 AND f.friend_id = u.id)
			ORDER BY u.name`, currentUserID(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database query failed")
			glog.Errorf("[users] list: %v", err)
			return
		}
		defer rows.Close()

		users := []models.User{}
		for rows.Next() {
			var u models.User
			if err := scanUser(rows, &u); err != nil {
				writeError(w, http.StatusInternalServerError, "Error scanning user data")
				glog.Errorf("[users] scan: %v", err)
				return
			}
			users = append(users, u)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "Error iterating rows")
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// UpdateProfile takes a multipart form; absent fields keep their value.
func UpdateProfile(db *sql.DB, store *services.MediaStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseUpload(w, r) {
			return
		}
		userID := currentUserID(r)

		var u models.User
		if err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, userID), &u); err != nil {
			writeError(w, http.StatusInternalServerError, "Database query failed")
			glog.Errorf("[users] load profile %d: %v", userID, err)
			return
		}

		if v := strings.TrimSpace(r.FormValue("name")); v != "" {
			u.Name = v
		}
		if _, ok := r.MultipartForm.Value["description"]; ok {
			u.Description = strings.TrimSpace(r.FormValue("description"))
		}
		if _, ok := r.MultipartForm.Value["location"]; ok {
			u.Location = strings.TrimSpace(r.FormValue("location"))
		}

		if file, header, err := r.FormFile("picture"); err == nil {
			defer file.Close()
			res, err := store.Save(file, header.Filename)
			if err != nil {
				writeSaveError(w, err, "Failed to save picture")
				glog.Errorf("[users] save picture: %v", err)
				return
			}
			if res.MediaType != string(media.KindImage) {
				writeError(w, http.StatusBadRequest, "Profile picture must be an image")
				return
			}
			u.Picture = res.MediaURL
		}

		err := scanUser(db.QueryRow(`
			UPDATE users SET name = $1, description = $2, location = $3, picture = $4
			WHERE id = $5
			RETURNING `+userColumns,
			u.Name, u.Description, u.Location, u.Picture, userID), &u)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database update failed")
			glog.Errorf("[users] update profile %d: %v", userID, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func RegisterFCMToken(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Token == "" {
			writeError(w, http.StatusBadRequest, "FCM token is required")
			return
		}

		// a device moves to whoever signed in on it last
		_, err := db.Exec(`
			INSERT INTO fcm_tokens (user_id, token, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (token)
			DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()`,
			currentUserID(r), req.Token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to register FCM token")
			glog.Errorf("[FCM] register token: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"message": "FCM token registered successfully",
		})
	}
}
