package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/lib/pq"

	"projx.dev/social/models"
	"projx.dev/social/services"
)

const maxCommentLength = 500

const postSelect = `
	SELECT p.id, p.user_id, u.name, u.picture, p.content, p.media_url, p.created_at,
	       (SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS likes,
	       EXISTS(SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = $1) AS liked
	FROM posts p
	JOIN users u ON u.id = p.user_id`

// queryPosts runs postSelect with the viewer as $1 and fills in comments.
func queryPosts(db *sql.DB, where string, args ...interface{}) ([]models.Post, error) {
	rows, err := db.Query(postSelect+" "+where+" ORDER BY p.created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	index := map[int]int{}
	var ids []int64
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.UserName, &p.UserPic, &p.Content,
			&p.MediaURL, &p.Timestamp, &p.Likes, &p.Liked); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Comments = []models.Comment{}
		index[p.ID] = len(posts)
		ids = append(ids, int64(p.ID))
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return posts, nil
	}

	crows, err := db.Query(`
		SELECT c.id, c.post_id, c.user_id, u.name, c.text, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ANY($1)
		ORDER BY c.created_at ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c models.Comment
		if err := crows.Scan(&c.ID, &c.PostID, &c.UserID, &c.UserName, &c.Text, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if i, ok := index[c.PostID]; ok {
			posts[i].Comments = append(posts[i].Comments, c)
		}
	}
	return posts, crows.Err()
}

// GetFeed returns the caller's posts and their friends' posts, newest first.
func GetFeed(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)
		posts, err := queryPosts(db, `
			WHERE p.user_id = $1
			   OR p.user_id IN (SELECT friend_id FROM friendships WHERE user_id = $1)`, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch feed")
			glog.Errorf("[feed] user %d: %v", userID, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func GetPostsByUser(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathInt(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		posts, err := queryPosts(db, `WHERE p.user_id = $2`, currentUserID(r), ownerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to fetch posts")
			glog.Errorf("[feed] posts of %d: %v", ownerID, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func CreatePost(db *sql.DB, store *services.MediaStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !parseUpload(w, r) {
			return
		}
		userID := currentUserID(r)
		content := strings.TrimSpace(r.FormValue("content"))

		var mediaURL string
		if file, header, err := r.FormFile("media"); err == nil {
			defer file.Close()
			res, err := store.Save(file, header.Filename)
			if err != nil {
				writeSaveError(w, err, "Failed to save media")
				glog.Errorf("[feed] save media: %v", err)
				return
			}
			mediaURL = res.MediaURL
		}
		if content == "" && mediaURL == "" {
			writeError(w, http.StatusBadRequest, "Post needs text or media")
			return
		}

		var postID int
		err := db.QueryRow(`
			INSERT INTO posts (user_id, content, media_url)
			VALUES ($1, $2, $3)
			RETURNING id`, userID, content, mediaURL).Scan(&postID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create post")
			glog.Errorf("[feed] create post: %v", err)
			return
		}

		posts, err := queryPosts(db, `WHERE p.id = $2`, userID, postID)
		if err != nil || len(posts) == 0 {
			writeError(w, http.StatusInternalServerError, "Failed to load post")
			glog.Errorf("[feed] reload post %d: %v", postID, err)
			return
		}

		go notifyFriendsOfNewPost(db, userID, content)

		writeJSON(w, http.StatusCreated, posts[0])
	}
}

// ToggleLike flips the caller's like and answers with the recounted state.
func ToggleLike(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID, ok := pathInt(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid post ID")
			return
		}
		userID := currentUserID(r)

		tx, err := db.Begin()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Transaction error")
			return
		}
		defer tx.Rollback()

		res, err := tx.Exec(`DELETE FROM likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update like")
			glog.Errorf("[feed] unlike: %v", err)
			return
		}
		removed, _ := res.RowsAffected()
		liked := removed == 0
		if liked {
			_, err = tx.Exec(`INSERT INTO likes (post_id, user_id) VALUES ($1, $2)`, postID, userID)
			if err != nil {
				if pqCode(err) == codeForeignKeyViolation {
					writeError(w, http.StatusNotFound, "Post not found")
					return
				}
				writeError(w, http.StatusInternalServerError, "Failed to create like")
				glog.Errorf("[feed] like: %v", err)
				return
			}
		}

		var result models.LikeResult
		if err := tx.QueryRow(`SELECT COUNT(*) FROM likes WHERE post_id = $1`, postID).Scan(&result.Likes); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count likes")
			return
		}
		result.Liked = liked
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to commit transaction")
			return
		}

		if liked {
			go notifyPostOwnerOfLike(db, postID, userID)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func CreateComment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID, ok := pathInt(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid post ID")
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "Comment text is required")
			return
		}
		if len(req.Text) > maxCommentLength {
			writeError(w, http.StatusBadRequest, "Comment must be at most 500 characters")
			return
		}

		var c models.Comment
		err := db.QueryRow(`
			WITH inserted AS (
				INSERT INTO comments (post_id, user_id, text)
				VALUES ($1, $2, $3)
				RETURNING id, post_id, user_id, text, created_at
			)
			SELECT i.id, i.post_id, i.user_id, u.name, i.text, i.created_at
			FROM inserted i JOIN users u ON u.id = i.user_id`,
			postID, currentUserID(r), req.Text,
		).Scan(&c.ID, &c.PostID, &c.UserID, &c.UserName, &c.Text, &c.Timestamp)
		if err != nil {
			if pqCode(err) == codeForeignKeyViolation {
				writeError(w, http.StatusNotFound, "Post not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to add comment")
			glog.Errorf("[feed] comment: %v", err)
			return
		}

		go notifyPostOwnerOfComment(db, postID, c.UserID, c.Text)

		writeJSON(w, http.StatusCreated, c)
	}
}

func notifyPostOwnerOfLike(db *sql.DB, postID, likerID int) {
	var ownerID int
	var content, likerName string
	err := db.QueryRow(`
		SELECT p.user_id, p.content, u.name
		FROM posts p, users u
		WHERE p.id = $1 AND u.id = $2`, postID, likerID).Scan(&ownerID, &content, &likerName)
	if err != nil {
		glog.Errorf("[FCM] like notification lookup: %v", err)
		return
	}
	if ownerID == likerID {
		return
	}
	err = services.SendNotificationToUser(db, ownerID,
		likerName+" liked your post", truncate(content, 100),
		map[string]string{
			"type":    "post_like",
			"post_id": strconv.Itoa(postID),
			"user_id": strconv.Itoa(likerID),
		})
	if err != nil {
		glog.V(1).Infof("[FCM] like notification for post %d not sent: %v", postID, err)
	}
}

func notifyPostOwnerOfComment(db *sql.DB, postID, commenterID int, text string) {
	var ownerID int
	var commenterName string
	err := db.QueryRow(`
		SELECT p.user_id, u.name
		FROM posts p, users u
		WHERE p.id = $1 AND u.id = $2`, postID, commenterID).Scan(&ownerID, &commenterName)
	if err != nil {
		glog.Errorf("[FCM] comment notification lookup: %v", err)
		return
	}
	if ownerID == commenterID {
		return
	}
	err = services.SendNotificationToUser(db, ownerID,
		commenterName+" commented on your post", truncate(text, 100),
		map[string]string{
			"type":    "post_comment",
			"post_id": strconv.Itoa(postID),
			"user_id": strconv.Itoa(commenterID),
		})
	if err != nil {
		glog.V(1).Infof("[FCM] comment notification for post %d not sent: %v", postID, err)
	}
}

func notifyFriendsOfNewPost(db *sql.DB, userID int, content string) {
	var name string
	if err := db.QueryRow(`SELECT name FROM users WHERE id = $1`, userID).Scan(&name); err != nil {
		name = "A friend"
	}
	rows, err := db.Query(`
		SELECT t.token FROM fcm_tokens t
		JOIN friendships f ON f.friend_id = t.user_id
		WHERE f.user_id = $1`, userID)
	if err != nil {
		glog.Errorf("[FCM] friend tokens for %d: %v", userID, err)
		return
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err == nil {
			tokens = append(tokens, token)
		}
	}
	if err := rows.Err(); err != nil {
		glog.Errorf("[FCM] friend tokens for %d: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	if content == "" {
		content = "Shared a new photo"
	}
	_, _, err = services.SendMultipleNotifications(db, tokens, name+" posted", truncate(content, 100),
		map[string]string{"type": "new_post", "user_id": strconv.Itoa(userID)})
	if err != nil {
		glog.V(1).Infof("[FCM] new post notification not sent: %v", err)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
