package fakecredstore

import (
	"errors"
	"sync"

	"github.com/mckhtech/uni360-go/credentials"
	"github.com/mckhtech/uni360-go/users"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests. Setting FailWrites
// makes every write return a *StorageError.
type FakeStore struct {
	lock         sync.RWMutex
	accessToken  string
	refreshToken string
	user         *users.User

	FailWrites bool
	SetCalls   int
	ClearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (s *FakeStore) SetCredentials(accessToken, refreshToken string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.SetCalls++
	if s.FailWrites {
		return &credentials.StorageError{Op: "set_credentials", Cause: errors.New("storage unavailable")}
	}
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	return nil
}

func (s *FakeStore) AccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.accessToken
}

func (s *FakeStore) RefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.refreshToken
}

func (s *FakeStore) SetCachedUser(user *users.User) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailWrites {
		return &credentials.StorageError{Op: "set_user", Cause: errors.New("storage unavailable")}
	}
	copied := *user
	s.user = &copied
	return nil
}

func (s *FakeStore) CachedUser() *users.User {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.user == nil {
		return nil
	}
	copied := *s.user
	return &copied
}

func (s *FakeStore) ClearAll() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.ClearCalls++
	if s.FailWrites {
		return &credentials.StorageError{Op: "clear", Cause: errors.New("storage unavailable")}
	}
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	return nil
}
