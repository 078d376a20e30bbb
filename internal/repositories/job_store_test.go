package repositories

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
)

func newJob(id string) *models.Job {
	return &models.Job{
		ID: id,
		Scene: models.Scene{
			ContactName: "Sam",
			Theme:       "imessage",
			Messages:    []models.Message{{Text: "Hi", SentByUser: true}},
		},
		EstimatedDurationSeconds: 4,
	}
}

// runStoreContract exercises the JobStore rules every implementation must honour.
func runStoreContract(t *testing.T, newStore func(t *testing.T) JobStore) {
	ctx := context.Background()
	fresh := func() time.Time { return time.Now().Add(-time.Hour) }

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, "Sam", got.Scene.ContactName)
		assert.Nil(t, got.ResultObjectName)
		assert.Nil(t, got.ErrorMessage)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		assert.ErrorIs(t, s.Create(ctx, newJob(id)), ErrJobExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing-"+uuid.NewString())
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("claim then complete", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))

		claimed, err := s.Claim(ctx, id, "tok-1", fresh())
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, claimed.Status)
		assert.Equal(t, 1, claimed.Attempts)

		require.NoError(t, s.Complete(ctx, id, "tok-1", models.Completion{
			ObjectName: "renders/x/video.mp4", URL: "https://example/x", FileSizeBytes: 42,
		}))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDone, got.Status)
		require.NotNil(t, got.ResultObjectName)
		assert.Equal(t, "renders/x/video.mp4", *got.ResultObjectName)
		assert.Nil(t, got.ErrorMessage)
		require.NotNil(t, got.FileSizeBytes)
		assert.EqualValues(t, 42, *got.FileSizeBytes)
	})

	t.Run("second claim conflicts", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))

		_, err := s.Claim(ctx, id, "a", fresh())
		require.NoError(t, err)
		_, err = s.Claim(ctx, id, "b", fresh())
		assert.ErrorIs(t, err, ErrClaimConflict)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Claim(ctx, id, fmt.Sprintf("tok-%d", i), fresh()); err == nil {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
	})

	t.Run("terminal rows are immutable", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		_, err := s.Claim(ctx, id, "tok", fresh())
		require.NoError(t, err)
		require.NoError(t, s.Fail(ctx, id, "tok", "engine crashed"))

		assert.ErrorIs(t, s.Complete(ctx, id, "tok", models.Completion{ObjectName: "o"}), ErrClaimConflict)
		assert.ErrorIs(t, s.Fail(ctx, id, "tok", "again"), ErrClaimConflict)
		_, err = s.Claim(ctx, id, "other", time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrClaimConflict)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "engine crashed", *got.ErrorMessage)
		assert.Nil(t, got.ResultObjectName)
	})

	t.Run("terminal write needs the current token", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		_, err := s.Claim(ctx, id, "owner", fresh())
		require.NoError(t, err)

		assert.ErrorIs(t, s.Fail(ctx, id, "intruder", "x"), ErrClaimConflict)
		assert.ErrorIs(t, s.Complete(ctx, "pending-never-claimed", "owner", models.Completion{ObjectName: "o"}), ErrClaimConflict)
	})

	t.Run("stale lease can be reclaimed and rotates the token", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		_, err := s.Claim(ctx, id, "crashed", fresh())
		require.NoError(t, err)

		staleBefore := time.Now().Add(time.Hour)
		listed, err := s.ListStartable(ctx, 10, staleBefore)
		require.NoError(t, err)
		assert.True(t, containsJob(listed, id))

		reclaimed, err := s.Claim(ctx, id, "rescuer", staleBefore)
		require.NoError(t, err)
		assert.Equal(t, 2, reclaimed.Attempts)

		assert.ErrorIs(t, s.Complete(ctx, id, "crashed", models.Completion{ObjectName: "o"}), ErrClaimConflict)
		assert.NoError(t, s.Complete(ctx, id, "rescuer", models.Completion{ObjectName: "o"}))
	})

	t.Run("renew keeps the lease fresh", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		_, err := s.Claim(ctx, id, "owner", fresh())
		require.NoError(t, err)

		before, err := s.Get(ctx, id)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, s.Renew(ctx, id, "owner"))

		after, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
		assert.Equal(t, models.StatusProcessing, after.Status)

		_, err = s.Claim(ctx, id, "rescuer", before.UpdatedAt.Add(time.Millisecond))
		assert.ErrorIs(t, err, ErrClaimConflict, "a renewed lease is not stale")
	})

	t.Run("renew needs the current token", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		assert.ErrorIs(t, s.Renew(ctx, id, "nobody"), ErrClaimConflict, "pending rows have no lease")

		_, err := s.Claim(ctx, id, "owner", fresh())
		require.NoError(t, err)
		assert.ErrorIs(t, s.Renew(ctx, id, "intruder"), ErrClaimConflict)
		require.NoError(t, s.Fail(ctx, id, "owner", "boom"))
		assert.ErrorIs(t, s.Renew(ctx, id, "owner"), ErrClaimConflict, "terminal rows have no lease")
	})

	t.Run("list startable skips fresh processing and terminal", func(t *testing.T) {
		s := newStore(t)
		pending, busy, done := uuid.NewString(), uuid.NewString(), uuid.NewString()
		for _, id := range []string{pending, busy, done} {
			require.NoError(t, s.Create(ctx, newJob(id)))
		}
		_, err := s.Claim(ctx, busy, "b", fresh())
		require.NoError(t, err)
		_, err = s.Claim(ctx, done, "d", fresh())
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, done, "d", models.Completion{ObjectName: "o"}))

		listed, err := s.ListStartable(ctx, 1000, fresh())
		require.NoError(t, err)
		assert.True(t, containsJob(listed, pending))
		assert.False(t, containsJob(listed, busy))
		assert.False(t, containsJob(listed, done))
	})

	t.Run("long error messages are truncated", func(t *testing.T) {
		s := newStore(t)
		id := uuid.NewString()
		require.NoError(t, s.Create(ctx, newJob(id)))
		_, err := s.Claim(ctx, id, "tok", fresh())
		require.NoError(t, err)
		require.NoError(t, s.Fail(ctx, id, "tok", strings.Repeat("x", 5000)))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, *got.ErrorMessage, MaxErrorMessageLen)
	})
}

func containsJob(jobs []models.Job, id string) bool {
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

func TestMemoryJobRepository(t *testing.T) {
	runStoreContract(t, func(t *testing.T) JobStore {
		return NewMemoryJobRepository()
	})
}

func TestMemoryListStartableOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	repo := NewMemoryJobRepository().WithClock(func() time.Time { return clock })

	for i, id := range []string{"c", "a", "b"} {
		clock = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, newJob(id)))
	}

	listed, err := repo.ListStartable(ctx, 2, base)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "c", listed[0].ID)
	assert.Equal(t, "a", listed[1].ID)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts[models.StatusPending])
	assert.EqualValues(t, 0, counts[models.StatusDone])
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	require.NoError(t, repo.Create(ctx, newJob("j")))

	got, err := repo.Get(ctx, "j")
	require.NoError(t, err)
	got.Scene.Messages[0].Text = "mutated"

	again, err := repo.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "Hi", again.Scene.Messages[0].Text)
}
