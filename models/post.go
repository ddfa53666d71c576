package models

import "time"

type Post struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserPic   string    `json:"user_picture,omitempty"`
	Content   string    `json:"content"`
	MediaURL  string    `json:"media_url,omitempty"`
	Likes     int       `json:"likes"`
	Liked     bool      `json:"liked"`
	Comments  []Comment `json:"comments"`
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a copy that shares no comment storage with p.
func (p Post) Clone() Post {
	c := p
	c.Comments = append([]Comment(nil), p.Comments...)
	return c
}
