package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"projx.dev/social/models"
	"projx.dev/social/realtime"
	"projx.dev/social/services"
)

// GetChats lists one summary per conversation partner, most recent first.
func GetChats(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.Query(`
			SELECT partner_id, name, picture, last_message, last_timestamp FROM (
				SELECT DISTINCT ON (m.partner_id)
				       m.partner_id, u.name, u.picture,
				       COALESCE(NULLIF(m.message, ''), '[' || m.media_type || ']') AS last_message,
				       m.created_at AS last_timestamp
				FROM (
					SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id,
					       message, media_type, created_at
					FROM messages
					WHERE sender_id = $1 OR receiver_id = $1
				) m
				JOIN users u ON u.id = m.partner_id
				ORDER BY m.partner_id, m.created_at DESC
			) latest
			ORDER BY last_timestamp DESC`, currentUserID(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch chats")
			glog.Errorf("[chat] list chats: %v", err)
			return
		}
		defer rows.Close()

		chats := []models.ChatSummary{}
		for rows.Next() {
			var c models.ChatSummary
			if err := rows.Scan(&c.PartnerID, &c.PartnerName, &c.PartnerPicture, &c.LastMessage, &c.LastTimestamp); err != nil {
				writeError(w, http.StatusInternalServerError, "Error scanning chats")
				glog.Errorf("[chat] scan chat: %v", err)
				return
			}
			chats = append(chats, c)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "Error iterating chats")
			glog.Errorf("[chat] list chats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	}
}

const messageColumns = `m.id, m.sender_id, m.receiver_id, u.name, m.message, m.media_url, m.media_type, m.created_at`

func scanMessage(row interface{ Scan(...interface{}) error }, m *models.ChatMessage) error {
	return row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.SenderName, &m.Message,
		&m.MediaURL, &m.MediaType, &m.Timestamp)
}

// GetMessages returns the history with one partner, oldest first.
func GetMessages(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, ok := pathInt(r, "userId")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		rows, err := db.Query(`
			SELECT `+messageColumns+`
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE (m.sender_id = $1 AND m.receiver_id = $2)
			   OR (m.sender_id = $2 AND m.receiver_id = $1)
			ORDER BY m.created_at ASC, m.id ASC`, currentUserID(r), partnerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
			glog.Errorf("[chat] history: %v", err)
			return
		}
		defer rows.Close()

		messages := []models.ChatMessage{}
		for rows.Next() {
			var m models.ChatMessage
			if err := scanMessage(rows, &m); err != nil {
				writeError(w, http.StatusInternalServerError, "Error scanning messages")
				return
			}
			messages = append(messages, m)
		}
		if err := rows.Err(); err != nil {
			writeError(w, http.StatusInternalServerError, "Error iterating messages")
			glog.Errorf("[chat] history: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, messages)
	}
}

// SendMessage stores the message and pushes it to every socket of both
// participants. A recipient without the chat open also gets a device push.
func SendMessage(db *sql.DB, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID := currentUserID(r)

		var req models.SendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" && req.MediaURL == "" {
			writeError(w, http.StatusBadRequest, "Message is empty")
			return
		}
		if req.ReceiverID <= 0 || req.ReceiverID == senderID {
			writeError(w, http.StatusBadRequest, "Invalid receiver")
			return
		}

		var m models.ChatMessage
		err := scanMessage(db.QueryRow(`
			WITH m AS (
				INSERT INTO messages (sender_id, receiver_id, message, media_url, media_type)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING *
			)
			SELECT `+messageColumns+` FROM m JOIN users u ON u.id = m.sender_id`,
			senderID, req.ReceiverID, req.Message, req.MediaURL, req.MediaType), &m)
		if pqCode(err) == codeForeignKeyViolation {
			writeError(w, http.StatusNotFound, "Receiver not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to send message")
			glog.Errorf("[chat] send: %v", err)
			return
		}

		env, err := realtime.NewEnvelope(models.EventNewMessage, m)
		if err == nil {
			n := hub.Broadcast(env, m.SenderID, m.ReceiverID)
			glog.V(2).Infof("[chat] message %d pushed to %d sockets", m.ID, n)
		}
		if !hub.InConversation(m.ReceiverID, m.SenderID) {
			go notifyNewMessage(db, m)
		}

		writeJSON(w, http.StatusCreated, m)
	}
}

func notifyNewMessage(db *sql.DB, m models.ChatMessage) {
	body := m.Message
	if body == "" {
		body = "Sent you " + m.MediaType
	}
	err := services.SendNotificationToUser(db, m.ReceiverID, m.SenderName, truncate(body, 100),
		map[string]string{
			"type":      models.EventNewMessage,
			"sender_id": strconv.Itoa(m.SenderID),
		})
	if err != nil {
		glog.V(1).Infof("[FCM] message push to %d not sent: %v", m.ReceiverID, err)
	}
}

func UploadMedia(store *services.MediaStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseUpload(w, r) {
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer file.Close()

		res, err := store.Save(file, header.Filename)
		if err != nil {
			writeSaveError(w, err, "Failed to save file")
			glog.Errorf("[media] upload: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
