// Package credentials persists the portal token pair and the cached user
// snapshot across process restarts, and answers token-expiry questions.
package credentials

import (
	"fmt"

	"github.com/mckhtech/uni360-go/users"
)

// Credentials is the token pair issued by the portal backend. It is
// overwritten wholesale on login and refresh and erased wholesale on logout.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Store is the persistence boundary for credentials and the cached user.
//
// Read accessors never fail: a missing, unreadable, or malformed entry is
// reported as absent so the application stays usable in a logged-out state.
// Write paths surface a *StorageError when the underlying storage misbehaves.
type Store interface {
	SetCredentials(accessToken, refreshToken string) error
	AccessToken() string
	RefreshToken() string

	SetCachedUser(user *users.User) error
	CachedUser() *users.User

	// ClearAll removes credentials and the cached user. Afterwards no
	// partial state is observable through the read accessors.
	ClearAll() error
}

// StorageError reports that the persistent store could not complete an
// operation.
type StorageError struct {
	Op    string // "set_credentials", "set_user", "clear"
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential storage %s failed: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
