package models

import "time"

type ChatMessage struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Message    string    `json:"message"`
	MediaURL   string    `json:"media_url,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Between reports whether the message belongs to the conversation of a and b,
// in either direction.
func (m ChatMessage) Between(a, b int) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

type ChatSummary struct {
	PartnerID      int       `json:"partner_id"`
	PartnerName    string    `json:"partner_name"`
	PartnerPicture string    `json:"partner_picture,omitempty"`
	LastMessage    string    `json:"last_message"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

type SendMessageRequest struct {
	ReceiverID int    `json:"receiver_id"`
	Message    string `json:"message"`
	MediaURL   string `json:"media_url,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
}

const (
	EventJoinChat   = "join_chat"
	EventLeaveChat  = "leave_chat"
	EventNewMessage = "new_message"
)

// ChatRoom is the payload of join_chat and leave_chat events.
type ChatRoom struct {
	UserID int `json:"user_id"`
}
