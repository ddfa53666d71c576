package viewmodel

import (
	"context"
	"errors"
	"sync"

	"projx.dev/social/models"
)

var (
	ErrNotificationNotFound = errors.New("no acceptable notification for request")
	ErrAcceptInProgress     = errors.New("friend request is already being accepted")
)

type NotificationsAPI interface {
	Notifications(ctx context.Context) ([]models.Notification, error)
	AcceptFriendRequest(ctx context.Context, requestID string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Notifications holds friend-request and friend-accept events. Accepted
// requests stay in the list, flagged read.
type Notifications struct {
	api     NotificationsAPI
	signals *Signals
	toaster Toaster

	mu        sync.Mutex
	items     []models.Notification
	accepting map[string]bool
}

func NewNotifications(api NotificationsAPI, signals *Signals, toaster Toaster) *Notifications {
	if toaster == nil {
		toaster = LogToaster{}
	}
	if signals == nil {
		signals = NewSignals()
	}
	return &Notifications{
		api:       api,
		signals:   signals,
		toaster:   toaster,
		accepting: map[string]bool{},
	}
}

// Fetch replaces the loaded set with the server's. Calling it twice is the
// same as calling it once.
func (n *Notifications) Fetch(ctx context.Context) error {
	items, err := n.api.Notifications(ctx)
	if err != nil {
		report(n.toaster, "notifications", err)
		return err
	}
	kept := make([]models.Notification, 0, len(items))
	for _, item := range items {
		// a friend_request without a request id has nothing to act on
		if item.Type == models.NotificationFriendRequest && item.FriendRequestID == "" {
			continue
		}
		kept = append(kept, item)
	}

	n.mu.Lock()
	n.items = kept
	n.mu.Unlock()
	return nil
}

func (n *Notifications) Items() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.items...)
}

func (n *Notifications) Unread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, item := range n.items {
		if !item.Read {
			count++
		}
	}
	return count
}

// CanAccept reports whether the Accept action for requestID is active.
func (n *Notifications) CanAccept(requestID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.findAcceptable(requestID) >= 0 && !n.accepting[requestID]
}

func (n *Notifications) findAcceptable(requestID string) int {
	for i, item := range n.items {
		if item.FriendRequestID == requestID && item.Acceptable() {
			return i
		}
	}
	return -1
}

// Accept accepts a friend request. On success the notification is marked read
// in place and FriendListUpdated is published; on failure nothing changes.
func (n *Notifications) Accept(ctx context.Context, requestID string) error {
	n.mu.Lock()
	if n.findAcceptable(requestID) < 0 {
		n.mu.Unlock()
		return ErrNotificationNotFound
	}
	if n.accepting[requestID] {
		n.mu.Unlock()
		return ErrAcceptInProgress
	}
	n.accepting[requestID] = true
	n.mu.Unlock()

	err := n.api.AcceptFriendRequest(ctx, requestID)

	n.mu.Lock()
	delete(n.accepting, requestID)
	if err == nil {
		for i := range n.items {
			if n.items[i].FriendRequestID == requestID {
				n.items[i].Read = true
			}
		}
	}
	n.mu.Unlock()

	if err != nil {
		report(n.toaster, "notifications", err)
		return err
	}
	n.toaster.Toast(LevelSuccess, "Friend request accepted!")
	n.signals.Publish(FriendListUpdated)
	return nil
}

// MarkAllRead flags every loaded notification read once the backend agrees.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	if err := n.api.MarkAllNotificationsRead(ctx); err != nil {
		report(n.toaster, "notifications", err)
		return err
	}
	n.mu.Lock()
	for i := range n.items {
		n.items[i].Read = true
	}
	n.mu.Unlock()
	return nil
}
