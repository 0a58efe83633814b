package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/va4unsingh/socket-chat-app/cmd/internal/account/ids"
)

// runStoreContract exercises the Store contract against any implementation.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and load", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		acc := newTestAccount(t, "alice", "alice@example.com")
		require.NoError(t, st.Create(ctx, acc))
		assert.EqualValues(t, 1, acc.Version)

		byID, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
		assert.Equal(t, RoleUser, byID.Role)
		assert.True(t, byID.IsActive)
		assert.False(t, byID.IsVerified)

		byName, err := st.GetByIdentifier(ctx, "  ALICE ")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byName.ID)

		byMail, err := st.GetByIdentifier(ctx, "Alice@Example.com")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byMail.ID)

		_, err = st.GetByID(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, IsNotFound(err))
	})

	t.Run("unique username and email", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newTestAccount(t, "bob", "bob@example.com")))

		err := st.Create(ctx, newTestAccount(t, "bob", "other@example.com"))
		field, ok := ConflictField(err)
		require.True(t, ok, "expected conflict, got %v", err)
		assert.Equal(t, "username", field)

		err = st.Create(ctx, newTestAccount(t, "bobby", "bob@example.com"))
		field, ok = ConflictField(err)
		require.True(t, ok, "expected conflict, got %v", err)
		assert.Equal(t, "email", field)
	})

	t.Run("save round-trips sessions and token fields", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		acc := newTestAccount(t, "carol", "carol@example.com")
		require.NoError(t, st.Create(ctx, acc))

		now := time.Now().UTC().Truncate(time.Millisecond)
		acc.Sessions = []Session{
			{TokenHash: "h1", Device: "Firefox on Linux", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
			{TokenHash: "h2", Device: "Safari on iOS", CreatedAt: now, ExpiresAt: now.Add(2 * time.Hour)},
		}
		acc.VerificationTokenHash = "vhash"
		acc.VerificationTokenExpires = now.Add(24 * time.Hour)
		acc.ResetTokenHash = "rhash"
		acc.ResetTokenExpires = now.Add(10 * time.Minute)
		require.NoError(t, st.Save(ctx, acc))
		assert.EqualValues(t, 2, acc.Version)

		got, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		require.Len(t, got.Sessions, 2)
		assert.Equal(t, "h1", got.Sessions[0].TokenHash)
		assert.Equal(t, "Safari on iOS", got.Sessions[1].Device)
		assert.True(t, got.Sessions[1].ExpiresAt.Equal(now.Add(2*time.Hour)))
		assert.EqualValues(t, 2, got.Version)

		byV, err := st.GetByVerificationTokenHash(ctx, "vhash")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byV.ID)

		byR, err := st.GetByResetTokenHash(ctx, "rhash")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byR.ID)

		_, err = st.GetByResetTokenHash(ctx, "")
		assert.True(t, IsNotFound(err))
	})

	t.Run("stale save is rejected", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		acc := newTestAccount(t, "dave", "dave@example.com")
		require.NoError(t, st.Create(ctx, acc))

		a1, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		a2, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)

		a1.Sessions = append(a1.Sessions, Session{TokenHash: "first"})
		require.NoError(t, st.Save(ctx, a1))

		a2.Sessions = append(a2.Sessions, Session{TokenHash: "second"})
		err = st.Save(ctx, a2)
		assert.True(t, IsStale(err), "expected ErrStale, got %v", err)

		got, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		require.Len(t, got.Sessions, 1)
		assert.Equal(t, "first", got.Sessions[0].TokenHash)
	})

	t.Run("concurrent saves never both win", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		acc := newTestAccount(t, "erin", "erin@example.com")
		require.NoError(t, st.Create(ctx, acc))

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, err := st.GetByID(ctx, acc.ID)
				if err != nil {
					return
				}
				a.FirstName = "writer"
				if err := st.Save(ctx, a); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		got, err := st.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1+wins, got.Version)
	})

	t.Run("delete", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		acc := newTestAccount(t, "frank", "frank@example.com")
		require.NoError(t, st.Create(ctx, acc))
		require.NoError(t, st.Delete(ctx, acc.ID))

		_, err := st.GetByID(ctx, acc.ID)
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(st.Delete(ctx, acc.ID)))
		assert.True(t, IsNotFound(st.Save(ctx, acc)))
	})
}

func newTestAccount(t *testing.T, username, email string) *Account {
	t.Helper()

	id, err := ids.NewULID(time.Now())
	require.NoError(t, err)

	return &Account{
		ID:           id,
		Username:     username,
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		Role:         RoleUser,
		IsActive:     true,
	}
}
