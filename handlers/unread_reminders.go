package handlers

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"

	"projx.dev/social/services"
)

// SendUnreadReminderNotifications pushes one reminder to every user with
// notifications left unread for longer than minAge.
func SendUnreadReminderNotifications(db *sql.DB, minAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-minAge)
	glog.Infof("[UnreadReminder] Job started, cutoff %v", cutoff.UTC())

	rows, err := db.Query(`
		SELECT user_id, COUNT(*)
		FROM notifications
		WHERE read = FALSE AND created_at <= $1
		GROUP BY user_id`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fetch unread counts: %w", err)
	}

	type pending struct{ userID, unread int }
	var users []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.userID, &p.unread); err != nil {
			glog.Errorf("[UnreadReminder] Scan error: %v", err)
			continue
		}
		users = append(users, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var notificationsSent int
	for _, p := range users {
		tokens, err := services.UserTokens(db, p.userID)
		if err != nil {
			glog.Errorf("[UnreadReminder] Error fetching tokens for user %d: %v", p.userID, err)
			continue
		}
		if len(tokens) == 0 {
			glog.V(1).Infof("[UnreadReminder] No FCM tokens found for user %d", p.userID)
			continue
		}

		body := "You have 1 unread notification"
		if p.unread > 1 {
			body = fmt.Sprintf("You have %d unread notifications", p.unread)
		}
		success, failure, err := services.SendMultipleNotifications(db, tokens, "Catch up with your friends", body,
			map[string]string{
				"type":    "unread_reminder",
				"user_id": strconv.Itoa(p.userID),
				"unread":  strconv.Itoa(p.unread),
			})
		if err != nil {
			glog.Errorf("[UnreadReminder] FCM error for user %d: %v", p.userID, err)
			continue
		}
		notificationsSent += success
		glog.Infof("[UnreadReminder] User %d → %d sent, %d failed", p.userID, success, failure)
	}

	glog.Infof("[UnreadReminder] Job finished | %d users pending, sent %d notifications",
		len(users), notificationsSent)
	return notificationsSent, nil
}
