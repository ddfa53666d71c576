package viewmodel

import (
	"errors"

	"github.com/golang/glog"

	"projx.dev/social/client"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toaster shows a transient message to the user.
type Toaster interface {
	Toast(level Level, message string)
}

type ToastFunc func(level Level, message string)

func (f ToastFunc) Toast(level Level, message string) { f(level, message) }

// LogToaster writes toasts to the log. Used when no UI is attached.
type LogToaster struct{}

func (LogToaster) Toast(level Level, message string) {
	if level == LevelError {
		glog.Errorf("[toast] %s", message)
		return
	}
	glog.Infof("[toast] %s", message)
}

// report logs a failed operation and toasts it. Validation failures are
// silent and 401s are left to the session's login prompt.
func report(t Toaster, op string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, client.ErrValidation) {
		glog.V(2).Infof("[%s] rejected locally: %v", op, err)
		return
	}
	glog.Errorf("[%s] %v", op, err)
	if errors.Is(err, client.ErrUnauthorized) {
		return
	}
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		t.Toast(LevelError, apiErr.Message)
	case client.IsTransport(err):
		t.Toast(LevelError, "Could not reach the server. Check your connection and try again.")
	default:
		t.Toast(LevelError, err.Error())
	}
}
