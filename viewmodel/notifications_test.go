package viewmodel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"projx.dev/social/client"
	"projx.dev/social/models"
)

// fakeServer keeps just enough backend state to exercise notifications and
// friends together.
type fakeServer struct {
	mu            sync.Mutex
	notifications []models.Notification
	friends       []models.User
	acceptErr     error
	friendCalls   int
	accepted      []string
}

func (s *fakeServer) Notifications(ctx context.Context) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...), nil
}

func (s *fakeServer) AcceptFriendRequest(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptErr != nil {
		return s.acceptErr
	}
	s.accepted = append(s.accepted, requestID)
	for i := range s.notifications {
		if s.notifications[i].FriendRequestID == requestID {
			s.notifications[i].Read = true
		}
	}
	s.friends = append(s.friends, models.User{ID: 2, Name: "Grace"})
	return nil
}

func (s *fakeServer) MarkAllNotificationsRead(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	return nil
}

func (s *fakeServer) Friends(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendCalls++
	return append([]models.User(nil), s.friends...), nil
}

func pendingRequest(id string) models.Notification {
	return models.Notification{
		ID:              1,
		Type:            models.NotificationFriendRequest,
		RequesterID:     2,
		RequesterName:   "Grace",
		FriendRequestID: id,
	}
}

func TestMarkAllReadThenFetch(t *testing.T) {
	server := &fakeServer{notifications: []models.Notification{
		pendingRequest("r1"),
		{ID: 2, Type: models.NotificationFriendAccept, RequesterID: 3},
	}}
	n := NewNotifications(server, nil, &toastLog{})
	ctx := context.Background()

	assert.Equal(t, n.Fetch(ctx), nil)
	assert.Equal(t, 2, n.Unread())

	assert.Equal(t, n.MarkAllRead(ctx), nil)
	assert.Equal(t, 0, n.Unread())

	assert.Equal(t, n.Fetch(ctx), nil)
	assert.Equal(t, 0, n.Unread())
	assert.Equal(t, false, n.CanAccept("r1"))
}

func TestFetchIsIdempotent(t *testing.T) {
	server := &fakeServer{notifications: []models.Notification{pendingRequest("r1")}}
	n := NewNotifications(server, nil, &toastLog{})

	assert.Equal(t, n.Fetch(context.Background()), nil)
	first := n.Items()
	assert.Equal(t, n.Fetch(context.Background()), nil)
	assert.Equal(t, first, n.Items())
}

func TestFetchDropsRequestsWithoutID(t *testing.T) {
	server := &fakeServer{notifications: []models.Notification{
		pendingRequest(""),
		pendingRequest("r2"),
	}}
	n := NewNotifications(server, nil, &toastLog{})

	assert.Equal(t, n.Fetch(context.Background()), nil)
	assert.Equal(t, 1, len(n.Items()))
	assert.Equal(t, "r2", n.Items()[0].FriendRequestID)
}

func TestAcceptOfflineKeepsRequestPending(t *testing.T) {
	server := &fakeServer{
		notifications: []models.Notification{pendingRequest("r1")},
		acceptErr:     &client.TransportError{Op: "POST /api/accept-friend-request", Err: errors.New("offline")},
	}
	signals := NewSignals()
	published := 0
	signals.Subscribe(FriendListUpdated, func() { published++ })
	toasts := &toastLog{}
	n := NewNotifications(server, signals, toasts)

	assert.Equal(t, n.Fetch(context.Background()), nil)
	err := n.Accept(context.Background(), "r1")
	assert.NotEqual(t, err, nil)

	assert.Equal(t, 1, n.Unread())
	assert.Equal(t, true, n.CanAccept("r1"))
	assert.Equal(t, 0, published)
	assert.Equal(t, LevelError, toasts.levels[0])
}

func TestAcceptMarksReadAndRefreshesFriends(t *testing.T) {
	server := &fakeServer{notifications: []models.Notification{pendingRequest("r1")}}
	signals := NewSignals()
	toasts := &toastLog{}
	n := NewNotifications(server, signals, toasts)
	friends := NewFriends(server, toasts)

	refreshed := make(chan struct{}, 1)
	friends.OnChange(func() { refreshed <- struct{}{} })
	stop := friends.Watch(context.Background(), signals)
	defer stop()

	assert.Equal(t, n.Fetch(context.Background()), nil)
	assert.Equal(t, n.Accept(context.Background(), "r1"), nil)

	assert.Equal(t, 0, n.Unread())
	assert.Equal(t, false, n.CanAccept("r1"))
	assert.Equal(t, 1, len(n.Items()))
	assert.Equal(t, []string{"r1"}, server.accepted)
	assert.Equal(t, "Friend request accepted!", toasts.texts[0])

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("friend list was not refetched")
	}
	assert.Equal(t, 1, len(friends.List()))
}

func TestAcceptUnknownRequest(t *testing.T) {
	server := &fakeServer{notifications: []models.Notification{pendingRequest("r1")}}
	n := NewNotifications(server, nil, &toastLog{})
	assert.Equal(t, n.Fetch(context.Background()), nil)

	err := n.Accept(context.Background(), "nope")
	assert.Equal(t, true, errors.Is(err, ErrNotificationNotFound))
	assert.Equal(t, 0, len(server.accepted))
}

type blockingAccept struct {
	*fakeServer
	release chan struct{}
	entered chan struct{}
}

func (b *blockingAccept) AcceptFriendRequest(ctx context.Context, requestID string) error {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeServer.AcceptFriendRequest(ctx, requestID)
}

func TestAcceptIsNotRepeatedWhileInFlight(t *testing.T) {
	api := &blockingAccept{
		fakeServer: &fakeServer{notifications: []models.Notification{pendingRequest("r1")}},
		release:    make(chan struct{}),
		entered:    make(chan struct{}),
	}
	n := NewNotifications(api, nil, &toastLog{})
	assert.Equal(t, n.Fetch(context.Background()), nil)

	done := make(chan error, 1)
	go func() { done <- n.Accept(context.Background(), "r1") }()
	<-api.entered

	assert.Equal(t, false, n.CanAccept("r1"))
	assert.Equal(t, true, errors.Is(n.Accept(context.Background(), "r1"), ErrAcceptInProgress))

	close(api.release)
	assert.Equal(t, <-done, nil)
	assert.Equal(t, []string{"r1"}, api.accepted)
}

func TestUnauthorizedIsNotToasted(t *testing.T) {
	server := &fakeServer{
		notifications: []models.Notification{pendingRequest("r1")},
		acceptErr:     &client.APIError{Status: 401, Message: "Invalid token"},
	}
	toasts := &toastLog{}
	n := NewNotifications(server, nil, toasts)
	assert.Equal(t, n.Fetch(context.Background()), nil)

	err := n.Accept(context.Background(), "r1")
	assert.Equal(t, true, errors.Is(err, client.ErrUnauthorized))
	assert.Equal(t, 0, toasts.count())
}
