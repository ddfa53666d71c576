package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"projx.dev/social/models"
)

func (c *Client) Register(ctx context.Context, name, email, password, confirm string) (models.User, error) {
	var u models.User
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return u, validationError("name, email and password are required")
	}
	if password != confirm {
		return u, validationError("passwords do not match")
	}
	err := c.postJSON(ctx, "/api/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &u)
	return u, err
}

// Login signs in with email and password and caches the current user.
func (c *Client) Login(ctx context.Context, email, password string) (models.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.User{}, validationError("email and password are required")
	}
	return c.login(ctx, "/api/login", map[string]string{"email": email, "password": password})
}

// GoogleLogin exchanges an identity-provider ID token for a session.
func (c *Client) GoogleLogin(ctx context.Context, idToken string) (models.User, error) {
	if idToken == "" {
		return models.User{}, validationError("id token is required")
	}
	return c.login(ctx, "/api/google-login", map[string]string{"id_token": idToken})
}

func (c *Client) login(ctx context.Context, path string, body map[string]string) (models.User, error) {
	var resp models.LoginResponse
	if err := c.postJSON(ctx, path, body, &resp); err != nil {
		return models.User{}, err
	}
	c.session.Auth().Remember(resp)
	if resp.User.ID == 0 {
		return c.CurrentUser(ctx)
	}
	c.session.SetUser(resp.User)
	return resp.User, nil
}

// Logout tells the backend and destroys the local session even if the call
// fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.postJSON(ctx, "/api/logout", nil, nil)
	c.session.Destroy()
	return err
}

func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	var u models.User
	if err := c.getJSON(ctx, "/api/current_user", &u); err != nil {
		return u, err
	}
	c.session.SetUser(u)
	return u, nil
}

func (c *Client) User(ctx context.Context, id int) (models.User, error) {
	var u models.User
	err := c.getJSON(ctx, "/api/user/"+strconv.Itoa(id), &u)
	return u, err
}

// Users lists people the current user may send a friend request to.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.getJSON(ctx, "/api/users", &users)
	return users, err
}

type ProfileUpdate struct {
	Name        string
	Description string
	Location    string
	Picture     *File
}

func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) (models.User, error) {
	fields := map[string]string{}
	if p.Name != "" {
		fields["name"] = p.Name
	}
	if p.Description != "" {
		fields["description"] = p.Description
	}
	if p.Location != "" {
		fields["location"] = p.Location
	}
	if len(fields) == 0 && p.Picture == nil {
		return models.User{}, validationError("nothing to update")
	}
	var u models.User
	if err := c.postMultipart(ctx, "/api/profile", fields, map[string]*File{"picture": p.Picture}, &u); err != nil {
		return u, err
	}
	c.session.SetUser(u)
	return u, nil
}

func (c *Client) Feed(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := c.getJSON(ctx, "/api/feeds", &posts)
	return posts, err
}

func (c *Client) UserPosts(ctx context.Context, userID int) ([]models.Post, error) {
	var posts []models.Post
	err := c.getJSON(ctx, "/api/user_posts/"+strconv.Itoa(userID), &posts)
	return posts, err
}

func (c *Client) CreatePost(ctx context.Context, content string, media *File) (models.Post, error) {
	var p models.Post
	if strings.TrimSpace(content) == "" && media == nil {
		return p, validationError("post needs text or media")
	}
	err := c.postMultipart(ctx, "/api/posts", map[string]string{"content": content},
		map[string]*File{"media": media}, &p)
	return p, err
}

func (c *Client) ToggleLike(ctx context.Context, postID int) (models.LikeResult, error) {
	var res models.LikeResult
	err := c.postJSON(ctx, fmt.Sprintf("/api/posts/%d/like", postID), nil, &res)
	return res, err
}

func (c *Client) CreateComment(ctx context.Context, postID int, text string) (models.Comment, error) {
	var comment models.Comment
	if strings.TrimSpace(text) == "" {
		return comment, validationError("comment is empty")
	}
	err := c.postJSON(ctx, fmt.Sprintf("/api/posts/%d/comments", postID),
		map[string]string{"text": text}, &comment)
	return comment, err
}

func (c *Client) Friends(ctx context.Context) ([]models.User, error) {
	var friends []models.User
	err := c.getJSON(ctx, "/api/friends", &friends)
	return friends, err
}

func (c *Client) SendFriendRequest(ctx context.Context, userID int) (string, error) {
	var resp struct {
		RequestID int `json:"request_id"`
	}
	if err := c.postJSON(ctx, "/api/send-friend-request", map[string]int{"userId": userID}, &resp); err != nil {
		return "", err
	}
	return models.FriendRequestKey(resp.RequestID), nil
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	if requestID == "" {
		return validationError("request id is required")
	}
	return c.postJSON(ctx, "/api/accept-friend-request", map[string]string{"requestId": requestID}, nil)
}

func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	err := c.getJSON(ctx, "/api/notifications", &notifications)
	return notifications, err
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.postJSON(ctx, "/api/notifications/mark-all-read", nil, nil)
}

func (c *Client) Chats(ctx context.Context) ([]models.ChatSummary, error) {
	var chats []models.ChatSummary
	err := c.getJSON(ctx, "/api/chats", &chats)
	return chats, err
}

func (c *Client) Messages(ctx context.Context, partnerID int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := c.getJSON(ctx, "/api/messages/"+strconv.Itoa(partnerID), &messages)
	return messages, err
}

func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (models.ChatMessage, error) {
	var msg models.ChatMessage
	if strings.TrimSpace(req.Message) == "" && req.MediaURL == "" {
		return msg, validationError("message is empty")
	}
	err := c.postJSON(ctx, "/api/messages/send", req, &msg)
	return msg, err
}

// Upload stores a file on the backend and returns its relative media url.
func (c *Client) Upload(ctx context.Context, f *File) (models.UploadResult, error) {
	var res models.UploadResult
	if f == nil {
		return res, validationError("no file selected")
	}
	err := c.postMultipart(ctx, "/api/upload", nil, map[string]*File{"file": f}, &res)
	return res, err
}

// RegisterDeviceToken subscribes this device to push notifications.
func (c *Client) RegisterDeviceToken(ctx context.Context, token string) error {
	if token == "" {
		return validationError("device token is required")
	}
	return c.postJSON(ctx, "/api/fcm-token", map[string]string{"token": token}, nil)
}
