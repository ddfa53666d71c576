package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"

	"projx.dev/social/config"
	"projx.dev/social/models"
)

// Session holds the credential and the current user for the life of the
// process. It is created at startup and destroyed on logout.
type Session struct {
	mu             sync.Mutex
	auth           AuthStrategy
	user           *models.User
	onUnauthorized []func(reason string)
}

func NewSession(auth AuthStrategy) *Session {
	return &Session{auth: auth}
}

func (s *Session) Auth() AuthStrategy {
	return s.auth
}

func (s *Session) Authenticated() bool {
	return s.auth.Authenticated()
}

// User returns the cached current user, if one has been fetched.
func (s *Session) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Session) UserID() int {
	u, _ := s.User()
	return u.ID
}

func (s *Session) SetUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// OnUnauthorized registers the login prompt. It receives a message saying why
// the user has to sign in again.
func (s *Session) OnUnauthorized(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUnauthorized = append(s.onUnauthorized, fn)
}

func (s *Session) unauthorized(reason string) {
	s.mu.Lock()
	hooks := append([]func(string){}, s.onUnauthorized...)
	s.mu.Unlock()

	glog.Infof("[session] unauthorized: %s", reason)
	for _, fn := range hooks {
		fn(reason)
	}
}

// Destroy drops the credential and the cached user.
func (s *Session) Destroy() {
	s.auth.Forget()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

type storedSession struct {
	Style      config.AuthStyle `json:"style"`
	Credential string           `json:"credential"`
	User       *models.User     `json:"user,omitempty"`
}

// Save writes the credential to path with owner-only permissions.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	stored := storedSession{
		Style:      s.auth.Style(),
		Credential: s.auth.Credential(),
		User:       s.user,
	}
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Load restores a credential saved by Save. A missing file leaves the session
// signed out.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	if stored.Style != s.auth.Style() {
		glog.Infof("[session] stored credential is %s, configured %s; ignoring", stored.Style, s.auth.Style())
		return nil
	}
	s.auth.Restore(stored.Credential)
	if stored.User != nil {
		s.SetUser(*stored.User)
	}
	return nil
}

func RemoveSaved(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
