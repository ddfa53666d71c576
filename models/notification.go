package models

import (
	"strconv"
	"time"
)

type NotificationType string

const (
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
)

type Notification struct {
	ID                  int              `json:"id"`
	Type                NotificationType `json:"type"`
	RequesterID         int              `json:"requester_id"`
	RequesterName       string           `json:"requester_name"`
	RequesterProfilePic string           `json:"requester_profile_pic,omitempty"`
	FriendRequestID     string           `json:"friend_request_id,omitempty"`
	Read                bool             `json:"read"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Acceptable reports whether the notification still offers an Accept action.
func (n Notification) Acceptable() bool {
	return n.Type == NotificationFriendRequest && n.FriendRequestID != "" && !n.Read
}

func FriendRequestKey(id int) string {
	return strconv.Itoa(id)
}
