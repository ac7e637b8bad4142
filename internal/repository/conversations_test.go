package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banterhq/banter/internal/domain"
)

// openTestDB migrates a throwaway sqlite file under the test tempdir.
// A file beats :memory: here: the pool hands out several connections and
// each in-memory connection would see its own empty database.
func openTestDB(t *testing.T) *testDB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "banter.db") + "?_busy_timeout=5000"
	db, err := Open(dsn)
	require.NoError(t, err)
	return &testDB{
		Users:  NewUserRepository(db),
		Convos: NewConversationRepository(db),
		Msgs:   NewMessageRepository(db),
	}
}

type testDB struct {
	Users  *UserRepository
	Convos *ConversationRepository
	Msgs   *MessageRepository
}

func TestResolveDirectIsOrderIndependent(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	first, err := tdb.Convos.ResolveDirect(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, "direct:3:7", first.PairKey)

	second, err := tdb.Convos.ResolveDirect(ctx, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveDirectRejectsGuestsAndSelf(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	_, err := tdb.Convos.ResolveDirect(ctx, 0, 5)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	_, err = tdb.Convos.ResolveDirect(ctx, 5, 0)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	_, err = tdb.Convos.ResolveDirect(ctx, 5, 5)
	assert.ErrorIs(t, err, domain.ErrSelfConversation)
}

func TestConcurrentFirstContactYieldsSingleConversation(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	const racers = 8
	ids := make([]domain.ConversationID, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, b := domain.UserID(1), domain.UserID(2)
			if n%2 == 1 {
				a, b = b, a
			}
			conv, err := tdb.Convos.ResolveDirect(ctx, a, b)
			if err == nil {
				ids[n] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	var winner domain.ConversationID
	for _, id := range ids {
		require.NotZero(t, id, "every racer must resolve a conversation")
		if winner == 0 {
			winner = id
		}
		assert.Equal(t, winner, id)
	}

	for _, uid := range []domain.UserID{1, 2} {
		member, err := tdb.Convos.IsParticipant(ctx, winner, uid)
		require.NoError(t, err)
		assert.True(t, member)
	}
}

func TestIsParticipantExcludesOutsiders(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	conv, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)

	member, err := tdb.Convos.IsParticipant(ctx, conv.ID, 3)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestDistinctPairsGetDistinctConversations(t *testing.T) {
	tdb := openTestDB(t)
	ctx := context.Background()

	ab, err := tdb.Convos.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)
	ac, err := tdb.Convos.ResolveDirect(ctx, 1, 3)
	require.NoError(t, err)
	assert.NotEqual(t, ab.ID, ac.ID)
}
