package handlers

import (
	"database/sql"
	"net/http"

	"github.com/golang/glog"

	"projx.dev/social/models"
)

func GetNotifications(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT n.id, n.type, n.requester_id, u.name, u.picture, n.friend_request_id, n.read, n.created_at
			FROM notifications n
			JOIN users u ON u.id = n.requester_id
			WHERE n.user_id = $1
			ORDER BY n.created_at DESC
			LIMIT 100`, currentUserID(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
			glog.Errorf("[notifications] list: %v", err)
			return
		}
		defer rows.Close()

		notifications := []models.Notification{}
		for rows.Next() {
			var n models.Notification
			var requestID sql.NullInt64
			if err := rows.Scan(&n.ID, &n.Type, &n.RequesterID, &n.RequesterName,
				&n.RequesterProfilePic, &requestID, &n.Read, &n.CreatedAt); err != nil {
				writeError(w, http.StatusInternalServerError, "Error scanning notifications")
				glog.Errorf("[notifications] scan: %v", err)
				return
			}
			if requestID.Valid {
				n.FriendRequestID = models.FriendRequestKey(int(requestID.Int64))
			}
			notifications = append(notifications, n)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "Error iterating notifications")
			return
		}
		writeJSON(w, http.StatusOK, notifications)
	}
}

func MarkAllNotificationsRead(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := db.Exec(`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`,
			currentUserID(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update notifications")
			glog.Errorf("[notifications] mark read: %v", err)
			return
		}
		updated, _ := res.RowsAffected()
		writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
	}
}
