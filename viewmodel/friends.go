package viewmodel

import (
	"context"
	"sync"

	"projx.dev/social/models"
)

type FriendsAPI interface {
	Friends(ctx context.Context) ([]models.User, error)
}

type Friends struct {
	api     FriendsAPI
	toaster Toaster

	mu       sync.Mutex
	friends  []models.User
	onChange []func()
}

func NewFriends(api FriendsAPI, toaster Toaster) *Friends {
	if toaster == nil {
		toaster = LogToaster{}
	}
	return &Friends{api: api, toaster: toaster}
}

func (f *Friends) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = append(f.onChange, fn)
}

func (f *Friends) Load(ctx context.Context) error {
	friends, err := f.api.Friends(ctx)
	if err != nil {
		report(f.toaster, "friends", err)
		return err
	}
	f.mu.Lock()
	f.friends = friends
	fns := append([]func(){}, f.onChange...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (f *Friends) List() []models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.friends...)
}

// Watch refetches whenever FriendListUpdated is published, until stop is
// called. Refetches use ctx and are skipped once it is done.
func (f *Friends) Watch(ctx context.Context, signals *Signals) (stop func()) {
	return signals.Subscribe(FriendListUpdated, func() {
		go func() {
			if ctx.Err() != nil {
				return
			}
			f.Load(ctx)
		}()
	})
}
