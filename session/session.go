// Package session owns the authenticated-session lifecycle: restoring a
// session at startup, login and signup flows, proactive token refresh, and
// logout.
package session

import (
	"errors"

	"github.com/mckhtech/uni360-go/users"
)

// Status is the lifecycle state of the session.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusRestoring      Status = "restoring"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusRefreshing     Status = "refreshing"
)

// Session is a read-only snapshot of the current state, derived on demand
// and never mutated by callers.
type Session struct {
	User            *users.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

var (
	// ErrNoActiveSession is returned when an operation requiring
	// authentication is invoked while anonymous.
	ErrNoActiveSession = errors.New("no active session")

	// ErrRefreshFailed is returned when the remote refresh call fails during
	// session restore or a proactive refresh. It always results in a forced
	// logout, never a retry loop.
	ErrRefreshFailed = errors.New("token refresh failed")
)
