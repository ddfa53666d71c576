package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"projx.dev/social/client"
	"projx.dev/social/media"
	"projx.dev/social/models"
)

var (
	ErrPostNotFound = errors.New("post not loaded")
	ErrEmptyComment = fmt.Errorf("%w: comment is empty", client.ErrValidation)
)

type FeedAPI interface {
	Feed(ctx context.Context) ([]models.Post, error)
	UserPosts(ctx context.Context, userID int) ([]models.Post, error)
	ToggleLike(ctx context.Context, postID int) (models.LikeResult, error)
	CreateComment(ctx context.Context, postID int, text string) (models.Comment, error)
	CreatePost(ctx context.Context, content string, media *client.File) (models.Post, error)
}

// Feed is the in-memory post list behind the feed and profile screens.
//
// Like toggles are optimistic. Two toggles on the same post before either
// response arrives are not queued; the post may show an intermediate count
// until the later response lands.
type Feed struct {
	api     FeedAPI
	toaster Toaster

	mu       sync.Mutex
	posts    []models.Post
	index    map[int]int
	onChange []func()
}

func NewFeed(api FeedAPI, toaster Toaster) *Feed {
	if toaster == nil {
		toaster = LogToaster{}
	}
	return &Feed{api: api, toaster: toaster, index: map[int]int{}}
}

// OnChange registers a callback run after every local state change.
func (f *Feed) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = append(f.onChange, fn)
}

func (f *Feed) changed() {
	f.mu.Lock()
	fns := append([]func(){}, f.onChange...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *Feed) Load(ctx context.Context) error {
	posts, err := f.api.Feed(ctx)
	if err != nil {
		report(f.toaster, "feed", err)
		return err
	}
	f.replace(posts)
	return nil
}

// LoadUserPosts fills the list with one user's posts, as the profile view does.
func (f *Feed) LoadUserPosts(ctx context.Context, userID int) error {
	posts, err := f.api.UserPosts(ctx, userID)
	if err != nil {
		report(f.toaster, "feed", err)
		return err
	}
	f.replace(posts)
	return nil
}

func (f *Feed) replace(posts []models.Post) {
	f.mu.Lock()
	f.posts = make([]models.Post, 0, len(posts))
	for _, p := range posts {
		f.posts = append(f.posts, p.Clone())
	}
	f.reindex()
	f.mu.Unlock()
	f.changed()
}

func (f *Feed) reindex() {
	f.index = make(map[int]int, len(f.posts))
	for i, p := range f.posts {
		f.index[p.ID] = i
	}
}

// Posts returns a snapshot safe to read while responses keep arriving.
func (f *Feed) Posts() []models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Post, len(f.posts))
	for i, p := range f.posts {
		out[i] = p.Clone()
	}
	return out
}

func (f *Feed) Post(id int) (models.Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[id]
	if !ok {
		return models.Post{}, false
	}
	return f.posts[i].Clone(), true
}

// Prepend puts a newly created post at the top of the list.
func (f *Feed) Prepend(p models.Post) {
	f.mu.Lock()
	f.posts = append([]models.Post{p.Clone()}, f.posts...)
	f.reindex()
	f.mu.Unlock()
	f.changed()
}

// ToggleLike flips the like immediately, then confirms with the backend. The
// server's counts win on success; the exact previous values come back on
// failure, unless the post was reloaded in the meantime.
func (f *Feed) ToggleLike(ctx context.Context, postID int) error {
	f.mu.Lock()
	i, ok := f.index[postID]
	if !ok {
		f.mu.Unlock()
		return ErrPostNotFound
	}
	post := &f.posts[i]
	prevLikes, prevLiked := post.Likes, post.Liked
	post.Liked = !post.Liked
	if post.Liked {
		post.Likes++
	} else if post.Likes > 0 {
		post.Likes--
	}
	optLikes, optLiked := post.Likes, post.Liked
	f.mu.Unlock()
	f.changed()

	res, err := f.api.ToggleLike(ctx, postID)

	f.mu.Lock()
	// the list may have been reloaded while the request was out
	if i, ok := f.index[postID]; ok {
		post := &f.posts[i]
		if err != nil {
			// a reload since then already holds fresher values
			if post.Likes == optLikes && post.Liked == optLiked {
				post.Likes, post.Liked = prevLikes, prevLiked
			}
		} else {
			post.Likes, post.Liked = res.Likes, res.Liked
		}
	}
	f.mu.Unlock()
	f.changed()

	if err != nil {
		report(f.toaster, "like", err)
		return err
	}
	glog.V(2).Infof("[feed] post %d settled likes=%d liked=%t", postID, res.Likes, res.Liked)
	return nil
}

// SubmitComment appends the server's copy of the comment, never the draft.
// Blank text is rejected before any request.
func (f *Feed) SubmitComment(ctx context.Context, postID int, text string) (models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, ErrEmptyComment
	}
	if _, ok := f.Post(postID); !ok {
		return models.Comment{}, ErrPostNotFound
	}

	comment, err := f.api.CreateComment(ctx, postID, strings.TrimSpace(text))
	if err != nil {
		report(f.toaster, "comment", err)
		return models.Comment{}, err
	}

	f.mu.Lock()
	if i, ok := f.index[postID]; ok {
		f.posts[i].Comments = append(f.posts[i].Comments, comment)
	}
	f.mu.Unlock()
	f.changed()
	return comment, nil
}

// CreatePost submits a post with an optional attachment. If the attachment
// cannot be sent the post is not created and nothing is added locally.
func (f *Feed) CreatePost(ctx context.Context, content string, preview *media.Preview) (models.Post, error) {
	var attachment *client.File
	if preview != nil {
		file, closeFile, err := preview.File()
		if err != nil {
			report(f.toaster, "post", err)
			return models.Post{}, err
		}
		defer closeFile()
		attachment = file
	}

	post, err := f.api.CreatePost(ctx, content, attachment)
	if err != nil {
		report(f.toaster, "post", err)
		return models.Post{}, err
	}
	if preview != nil && post.MediaURL != "" {
		preview.Resolve(post.MediaURL, media.KindFromPath(post.MediaURL))
	}
	f.Prepend(post)
	f.toaster.Toast(LevelSuccess, "Post created")
	return post, nil
}
