package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mckhtech/uni360-go/users"
)

// Fixed keys of the persisted document. The cached user is stored as a raw
// JSON blob so a corrupt snapshot never poisons the token entries next to it.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyCachedUser   = "cached_user"
)

// FileStore keeps the persisted state in a single JSON document on disk.
// Writes go through a temp file and rename so a crash mid-write leaves either
// the old document or the new one, never a torn mix.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by the document at path. The parent
// directory is created on first write.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.With().Str("component", "credential_store").Logger()}
}

func (s *FileStore) SetCredentials(accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc[keyAccessToken] = mustRaw(accessToken)
	doc[keyRefreshToken] = mustRaw(refreshToken)
	if err := s.save(doc); err != nil {
		return &StorageError{Op: "set_credentials", Cause: err}
	}
	return nil
}

func (s *FileStore) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stringEntry(keyAccessToken)
}

func (s *FileStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stringEntry(keyRefreshToken)
}

func (s *FileStore) SetCachedUser(user *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return &StorageError{Op: "set_user", Cause: err}
	}
	doc := s.load()
	doc[keyCachedUser] = raw
	if err := s.save(doc); err != nil {
		return &StorageError{Op: "set_user", Cause: err}
	}
	return nil
}

// CachedUser returns the stored snapshot, or nil when absent. A snapshot that
// no longer parses is dropped from the document rather than surfaced.
func (s *FileStore) CachedUser() *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	raw, ok := doc[keyCachedUser]
	if !ok || len(raw) == 0 {
		return nil
	}
	var user users.User
	if err := json.Unmarshal(raw, &user); err != nil {
		s.logger.Warn().Err(err).Msg("discarding malformed cached user")
		delete(doc, keyCachedUser)
		if err := s.save(doc); err != nil {
			s.logger.Warn().Err(err).Msg("could not remove malformed cached user")
		}
		return nil
	}
	return &user
}

func (s *FileStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Op: "clear", Cause: err}
	}
	return nil
}

// load reads the persisted document. Any read or parse failure degrades to an
// empty document.
func (s *FileStore) load() map[string]json.RawMessage {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("credential document malformed, treating as empty")
		return make(map[string]json.RawMessage)
	}
	return doc
}

func (s *FileStore) save(doc map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) stringEntry(key string) string {
	raw, ok := s.load()[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func mustRaw(v string) json.RawMessage {
	raw, _ := json.Marshal(v) // marshalling a string cannot fail
	return raw
}
