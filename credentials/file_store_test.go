package credentials_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mckhtech/uni360-go/credentials"
	"github.com/mckhtech/uni360-go/users"
)

func newTestStore(t *testing.T) (*credentials.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	return credentials.NewFileStore(path, zerolog.Nop()), path
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SetCredentials("access-1", "refresh-1"))
	require.Equal(t, "access-1", store.AccessToken())
	require.Equal(t, "refresh-1", store.RefreshToken())

	// Overwritten wholesale on refresh.
	require.NoError(t, store.SetCredentials("access-2", "refresh-2"))
	require.Equal(t, "access-2", store.AccessToken())
	require.Equal(t, "refresh-2", store.RefreshToken())
}

func TestFileStoreEmptyReadsAreAbsent(t *testing.T) {
	store, _ := newTestStore(t)

	require.Empty(t, store.AccessToken())
	require.Empty(t, store.RefreshToken())
	require.Nil(t, store.CachedUser())
}

func TestFileStoreCachedUser(t *testing.T) {
	store, _ := newTestStore(t)

	user := &users.User{
		ID:            "user-1",
		Email:         "maria@example.com",
		FirstName:     "Maria",
		LastName:      "Schmidt",
		TargetCountry: "Germany",
		Stage:         users.StageApplying,
	}
	require.NoError(t, store.SetCachedUser(user))

	got := store.CachedUser()
	require.NotNil(t, got)
	require.Equal(t, *user, *got)
}

func TestFileStoreUserSurvivesCredentialWrite(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SetCachedUser(&users.User{ID: "user-1", Email: "maria@example.com"}))
	require.NoError(t, store.SetCredentials("access-1", "refresh-1"))

	require.NotNil(t, store.CachedUser())
	require.Equal(t, "access-1", store.AccessToken())
}

func TestFileStoreMalformedDocumentTreatedAsEmpty(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	require.Empty(t, store.AccessToken())
	require.Nil(t, store.CachedUser())

	// The store must remain writable afterwards.
	require.NoError(t, store.SetCredentials("access-1", "refresh-1"))
	require.Equal(t, "access-1", store.AccessToken())
}

func TestFileStoreMalformedUserRemoved(t *testing.T) {
	store, path := newTestStore(t)

	doc := map[string]json.RawMessage{
		"access_token": json.RawMessage(`"access-1"`),
		"cached_user":  json.RawMessage(`"not an object"`),
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	require.Nil(t, store.CachedUser())

	// The malformed entry is gone but the tokens next to it survive.
	reread, err := os.ReadFile(path)
	require.NoError(t, err)
	var after map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(reread, &after))
	require.NotContains(t, after, "cached_user")
	require.Equal(t, "access-1", store.AccessToken())
}

func TestFileStoreClearAll(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.SetCredentials("access-1", "refresh-1"))
	require.NoError(t, store.SetCachedUser(&users.User{ID: "user-1"}))

	require.NoError(t, store.ClearAll())
	require.Empty(t, store.AccessToken())
	require.Empty(t, store.RefreshToken())
	require.Nil(t, store.CachedUser())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Clearing an already empty store is not an error.
	require.NoError(t, store.ClearAll())
}
