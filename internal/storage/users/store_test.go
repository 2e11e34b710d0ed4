package users

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := docstore.New(t.TempDir())
	require.NoError(t, err)
	return New(db)
}

func TestLoadAllEmpty(t *testing.T) {
	store := newTestStore(t)

	all, err := store.LoadAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSaveAllLoadAllRoundTrip(t *testing.T) {
	store := newTestStore(t)

	alice, err := domain.NewUser(1, "alice", "s3cret")
	require.NoError(t, err)
	bob, err := domain.NewUser(2, "bob", "s3cret")
	require.NoError(t, err)

	require.NoError(t, store.SaveAll([]*domain.User{alice, bob}))

	all, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "alice", all[0].Username)
	require.Equal(t, alice.PasswordHash, all[0].PasswordHash)
	require.Equal(t, alice.RegisteredAt, all[0].RegisteredAt)
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.LoadSession()
	require.NoError(t, err)
	require.Empty(t, sess.CurrentUser)

	want := Session{
		CurrentUser: "alice",
		Token:       "tok-123",
		LoggedInAt:  time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveSession(want))

	got, err := store.LoadSession()
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.NoError(t, store.ClearSession())
	got, err = store.LoadSession()
	require.NoError(t, err)
	require.Empty(t, got.CurrentUser)
}
