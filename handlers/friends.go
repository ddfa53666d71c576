package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"projx.dev/social/models"
	"projx.dev/social/services"
)

func GetFriends(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT u.id, u.name, u.email, u.picture, u.description, u.location, u.created_at
			FROM friendships f
			JOIN users u ON u.id = f.friend_id
			WHERE f.user_id = $1
			ORDER BY u.name`, currentUserID(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch friends")
			glog.Errorf("[friends] list: %v", err)
			return
		}
		defer rows.Close()

		friends := []models.User{}
		for rows.Next() {
			var u models.User
			if err := scanUser(rows, &u); err != nil {
				writeError(w, http.StatusInternalServerError, "Error scanning friends")
				return
			}
			friends = append(friends, u)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "Error iterating friends")
			glog.Errorf("[friends] list: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, friends)
	}
}

func SendFriendRequest(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID := currentUserID(r)

		var req struct {
			UserID int `json:"userId"`
		}
		if err := decodeJSON(r, &req); err != nil || req.UserID <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.UserID == requesterID {
			writeError(w, http.StatusBadRequest, "Cannot send a friend request to yourself")
			return
		}

		var recipientExists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", req.UserID).Scan(&recipientExists)
		if err != nil || !recipientExists {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}

		var alreadyFriends bool
		err = db.QueryRow(`
			SELECT EXISTS(SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
			requesterID, req.UserID).Scan(&alreadyFriends)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if alreadyFriends {
			writeError(w, http.StatusConflict, "Already friends with this user")
			return
		}

		tx, err := db.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Transaction error")
			return
		}
		defer tx.Rollback()

		var existing models.FriendRequest
		err = tx.QueryRow(`
			SELECT id, requester_id, status FROM friend_requests
			WHERE (requester_id = $1 AND recipient_id = $2)
			   OR (requester_id = $2 AND recipient_id = $1)
			FOR UPDATE`,
			requesterID, req.UserID).Scan(&existing.ID, &existing.RequesterID, &existing.Status)

		switch {
		case err == sql.ErrNoRows:
			err = tx.QueryRow(`
				INSERT INTO friend_requests (requester_id, recipient_id, status)
				VALUES ($1, $2, 'pending')
				RETURNING id`, requesterID, req.UserID).Scan(&existing.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to send friend request")
				glog.Errorf("[friends] insert request: %v", err)
				return
			}
		case err != nil:
			writeError(w, http.StatusInternalServerError, "Database error")
			glog.Errorf("[friends] lookup request: %v", err)
			return
		case existing.Status == models.FriendRequestPending:
			writeError(w, http.StatusConflict, "Friend request already pending")
			return
		default:
			// rejected, or accepted and since unfriended: send it again in this direction
			_, err = tx.Exec(`
				UPDATE friend_requests
				SET requester_id = $2, recipient_id = $3, status = 'pending', updated_at = NOW()
				WHERE id = $1`, existing.ID, requesterID, req.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to resend friend request")
				glog.Errorf("[friends] resend request: %v", err)
				return
			}
		}

		_, err = tx.Exec(`
			INSERT INTO notifications (user_id, type, requester_id, friend_request_id)
			VALUES ($1, $2, $3, $4)`,
			req.UserID, models.NotificationFriendRequest, requesterID, existing.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create notification")
			glog.Errorf("[friends] request notification: %v", err)
			return
		}

		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to commit transaction")
			return
		}

		go notifyFriendRequest(db, requesterID, req.UserID)

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"message":    "Friend request sent",
			"request_id": existing.ID,
		})
	}
}

// AcceptFriendRequest makes the two users friends in both directions, marks
// the request's notification read and tells the requester.
func AcceptFriendRequest(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)

		var req struct {
			RequestID string `json:"requestId"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		requestID, err := strconv.Atoi(strings.TrimSpace(req.RequestID))
		if err != nil || requestID <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request id")
			return
		}

		tx, err := db.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Transaction error")
			return
		}
		defer tx.Rollback()

		var fr models.FriendRequest
		err = tx.QueryRow(`
			SELECT requester_id, recipient_id, status
			FROM friend_requests
			WHERE id = $1
			FOR UPDATE`, requestID).Scan(&fr.RequesterID, &fr.RecipientID, &fr.Status)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "Friend request not found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if fr.RecipientID != userID {
			writeError(w, http.StatusForbidden, "Unauthorized to accept this request")
			return
		}
		if fr.Status != models.FriendRequestPending {
			writeError(w, http.StatusConflict, "Request already processed")
			return
		}

		_, err = tx.Exec(`
			UPDATE friend_requests
			SET status = 'accepted', updated_at = NOW()
			WHERE id = $1`, requestID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to accept request")
			return
		}

		_, err = tx.Exec(`
			INSERT INTO friendships (user_id, friend_id)
			VALUES ($1, $2), ($2, $1)
			ON CONFLICT (user_id, friend_id) DO NOTHING`,
			fr.RequesterID, fr.RecipientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create friendship")
			glog.Errorf("[friends] friendship insert: %v", err)
			return
		}

		_, err = tx.Exec(`
			UPDATE notifications SET read = TRUE
			WHERE user_id = $1 AND friend_request_id = $2`, userID, requestID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update notifications")
			return
		}

		_, err = tx.Exec(`
			INSERT INTO notifications (user_id, type, requester_id)
			VALUES ($1, $2, $3)`,
			fr.RequesterID, models.NotificationFriendAccept, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create notification")
			glog.Errorf("[friends] accept notification: %v", err)
			return
		}

		if err = tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to commit transaction")
			return
		}

		go notifyRequestAccepted(db, fr.RequesterID, userID)

		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Friend request accepted",
		})
	}
}

func userName(db *sql.DB, id int) string {
	var name string
	if err := db.QueryRow("SELECT name FROM users WHERE id = $1", id).Scan(&name); err != nil {
		glog.Errorf("[friends] name of user %d: %v", id, err)
		return "Someone"
	}
	return name
}

func notifyFriendRequest(db *sql.DB, requesterID, recipientID int) {
	err := services.SendNotificationToUser(db, recipientID, "New Friend Request",
		userName(db, requesterID)+" wants to be your friend!",
		map[string]string{
			"type":         string(models.NotificationFriendRequest),
			"requester_id": strconv.Itoa(requesterID),
		})
	if err != nil {
		glog.V(1).Infof("[FCM] friend request push to %d not sent: %v", recipientID, err)
	}
}

func notifyRequestAccepted(db *sql.DB, requesterID, accepterID int) {
	err := services.SendNotificationToUser(db, requesterID, "Friend Request Accepted",
		userName(db, accepterID)+" accepted your friend request!",
		map[string]string{
			"type":    string(models.NotificationFriendAccept),
			"user_id": strconv.Itoa(accepterID),
		})
	if err != nil {
		glog.V(1).Infof("[FCM] accept push to %d not sent: %v", requesterID, err)
	}
}
