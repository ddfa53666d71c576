package viewmodel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"projx.dev/social/client"
	"projx.dev/social/models"
)

type toastLog struct {
	mu     sync.Mutex
	levels []Level
	texts  []string
}

func (l *toastLog) Toast(level Level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, level)
	l.texts = append(l.texts, message)
}

func (l *toastLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.texts)
}

type fakeFeedAPI struct {
	posts []models.Post

	// like is called while the request is in flight
	like     func(postID int) (models.LikeResult, error)
	comment  models.Comment
	err      error
	calls    int
	lastText string
}

func (f *fakeFeedAPI) Feed(ctx context.Context) ([]models.Post, error) {
	f.calls++
	return f.posts, f.err
}

func (f *fakeFeedAPI) UserPosts(ctx context.Context, userID int) ([]models.Post, error) {
	f.calls++
	var out []models.Post
	for _, p := range f.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeFeedAPI) ToggleLike(ctx context.Context, postID int) (models.LikeResult, error) {
	f.calls++
	return f.like(postID)
}

func (f *fakeFeedAPI) CreateComment(ctx context.Context, postID int, text string) (models.Comment, error) {
	f.calls++
	f.lastText = text
	if f.err != nil {
		return models.Comment{}, f.err
	}
	return f.comment, nil
}

func (f *fakeFeedAPI) CreatePost(ctx context.Context, content string, media *client.File) (models.Post, error) {
	f.calls++
	if f.err != nil {
		return models.Post{}, f.err
	}
	return models.Post{ID: 100, UserID: 1, Content: content}, nil
}

func loadedFeed(t *testing.T, api *fakeFeedAPI, toasts Toaster) *Feed {
	t.Helper()
	feed := NewFeed(api, toasts)
	if err := feed.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	api.calls = 0
	return feed
}

func TestToggleLikeFailureKeepsReloadedPost(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 42, Likes: 3, Liked: true}}}
	toasts := &toastLog{}
	feed := loadedFeed(t, api, toasts)

	api.like = func(postID int) (models.LikeResult, error) {
		api.posts = []models.Post{{ID: 42, Likes: 9, Liked: false}}
		if err := feed.Load(context.Background()); err != nil {
			t.Fatalf("reload: %v", err)
		}
		return models.LikeResult{}, &client.TransportError{Op: "like", Err: errors.New("offline")}
	}

	err := feed.ToggleLike(context.Background(), 42)
	assert.NotEqual(t, err, nil)

	after, _ := feed.Post(42)
	assert.Equal(t, 9, after.Likes)
	assert.Equal(t, false, after.Liked)
	assert.Equal(t, 1, toasts.count())
}

func TestToggleLikeIsOptimisticThenServerWins(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 42, Likes: 3}}}
	feed := loadedFeed(t, api, &toastLog{})

	var during models.Post
	api.like = func(postID int) (models.LikeResult, error) {
		during, _ = feed.Post(postID)
		return models.LikeResult{Likes: 5, Liked: true}, nil
	}

	err := feed.ToggleLike(context.Background(), 42)
	assert.Equal(t, err, nil)
	assert.Equal(t, 4, during.Likes)
	assert.Equal(t, true, during.Liked)

	after, _ := feed.Post(42)
	assert.Equal(t, 5, after.Likes)
	assert.Equal(t, true, after.Liked)
}

func TestToggleLikeFailureRestoresExactly(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 42, Likes: 3, Liked: true}}}
	toasts := &toastLog{}
	feed := loadedFeed(t, api, toasts)

	var during models.Post
	api.like = func(postID int) (models.LikeResult, error) {
		during, _ = feed.Post(postID)
		return models.LikeResult{}, &client.TransportError{Op: "POST /api/posts/42/like", Err: errors.New("offline")}
	}

	err := feed.ToggleLike(context.Background(), 42)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, 2, during.Likes)
	assert.Equal(t, false, during.Liked)

	after, _ := feed.Post(42)
	assert.Equal(t, 3, after.Likes)
	assert.Equal(t, true, after.Liked)
	assert.Equal(t, 1, toasts.count())
	assert.Equal(t, LevelError, toasts.levels[0])
}

func TestToggleLikeUnknownPost(t *testing.T) {
	api := &fakeFeedAPI{}
	feed := loadedFeed(t, api, &toastLog{})

	err := feed.ToggleLike(context.Background(), 9)
	assert.Equal(t, true, errors.Is(err, ErrPostNotFound))
	assert.Equal(t, 0, api.calls)
}

func TestToggleLikeNotifiesChanges(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 1}}}
	feed := loadedFeed(t, api, &toastLog{})
	api.like = func(int) (models.LikeResult, error) { return models.LikeResult{Likes: 1, Liked: true}, nil }

	changes := 0
	feed.OnChange(func() { changes++ })
	assert.Equal(t, feed.ToggleLike(context.Background(), 1), nil)
	assert.Equal(t, 2, changes)
}

func TestBlankCommentMakesNoRequest(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 42}}}
	toasts := &toastLog{}
	feed := loadedFeed(t, api, toasts)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := feed.SubmitComment(context.Background(), 42, text)
		assert.Equal(t, true, errors.Is(err, ErrEmptyComment))
		assert.Equal(t, true, errors.Is(err, client.ErrValidation))
	}
	assert.Equal(t, 0, api.calls)
	assert.Equal(t, 0, toasts.count())

	post, _ := feed.Post(42)
	assert.Equal(t, 0, len(post.Comments))
}

func TestCommentAppendsServerCopy(t *testing.T) {
	api := &fakeFeedAPI{
		posts:   []models.Post{{ID: 42, Comments: []models.Comment{{ID: 1, Text: "first"}}}},
		comment: models.Comment{ID: 2, PostID: 42, UserName: "Ada", Text: "nice"},
	}
	feed := loadedFeed(t, api, &toastLog{})

	got, err := feed.SubmitComment(context.Background(), 42, "  nice ")
	assert.Equal(t, err, nil)
	assert.Equal(t, "nice", api.lastText)
	assert.Equal(t, 2, got.ID)

	post, _ := feed.Post(42)
	assert.Equal(t, 2, len(post.Comments))
	assert.Equal(t, "Ada", post.Comments[1].UserName)
}

func TestCommentFailureLeavesPostAlone(t *testing.T) {
	api := &fakeFeedAPI{
		posts: []models.Post{{ID: 42}},
		err:   &client.APIError{Status: 500, Message: "Failed to add comment"},
	}
	feed := &Feed{api: api, toaster: &toastLog{}, index: map[int]int{}}
	feed.replace(api.posts)

	_, err := feed.SubmitComment(context.Background(), 42, "hello")
	assert.NotEqual(t, err, nil)
	post, _ := feed.Post(42)
	assert.Equal(t, 0, len(post.Comments))
	assert.Equal(t, "Failed to add comment", feed.toaster.(*toastLog).texts[0])
}

func TestPostsSnapshotIsDetached(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 1, Comments: []models.Comment{{ID: 1}}}}}
	feed := loadedFeed(t, api, &toastLog{})

	snap := feed.Posts()
	snap[0].Likes = 99
	snap[0].Comments[0].Text = "changed"

	post, _ := feed.Post(1)
	assert.Equal(t, 0, post.Likes)
	assert.Equal(t, "", post.Comments[0].Text)
}

func TestCreatePostPrepends(t *testing.T) {
	api := &fakeFeedAPI{posts: []models.Post{{ID: 1}}}
	toasts := &toastLog{}
	feed := loadedFeed(t, api, toasts)

	post, err := feed.CreatePost(context.Background(), "hello", nil)
	assert.Equal(t, err, nil)
	assert.Equal(t, 100, post.ID)
	assert.Equal(t, 100, feed.Posts()[0].ID)
	assert.Equal(t, LevelSuccess, toasts.levels[0])
}
