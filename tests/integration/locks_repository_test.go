package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/locks"
)

func TestLockRepository_InsertAndFind(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	err := repo.Insert(ctx, &locks.Lock{
		Type:          locks.LockTypeMessage,
		MessageID:     "msg-1",
		TimeoutPeriod: 60,
	})
	require.NoError(t, err)

	found, err := repo.Find(ctx, locks.Query{Type: locks.LockTypeMessage, MessageID: "msg-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	assert.NotEmpty(t, found[0].ID)
	assert.Equal(t, 60, found[0].TimeoutPeriod)
	assert.False(t, found[0].CreatedAt.IsZero(), "created_at is set by the store")
	assert.False(t, found[0].Expired(time.Now()))
}

func TestLockRepository_DuplicateScopeRejected(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	require.NoError(t, repo.Insert(ctx, &locks.Lock{
		Type:          locks.LockTypeMessage,
		MessageID:     "msg-2",
		TimeoutPeriod: 60,
	}))

	err := repo.Insert(ctx, &locks.Lock{
		Type:          locks.LockTypeMessage,
		MessageID:     "msg-2",
		TimeoutPeriod: 60,
	})
	assert.ErrorIs(t, err, locks.ErrAlreadyLocked)
}

func TestLockRepository_ExpiredConflictIsEvicted(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	require.NoError(t, repo.Insert(ctx, &locks.Lock{
		Type:          locks.LockTypeDevice,
		DeviceID:      "dev-1",
		TimeoutPeriod: 1,
	}))

	// Let the first lock lapse, then re-lock the same scope. The expired
	// document still occupies the unique index until the insert evicts it.
	time.Sleep(1500 * time.Millisecond)

	require.NoError(t, repo.Insert(ctx, &locks.Lock{
		Type:          locks.LockTypeDevice,
		DeviceID:      "dev-1",
		TimeoutPeriod: 60,
	}))

	found, err := repo.Find(ctx, locks.Query{Type: locks.LockTypeDevice, DeviceID: "dev-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 60, found[0].TimeoutPeriod)
}

func TestLockRepository_ScopesAreIndependent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	toInsert := []locks.Lock{
		{Type: locks.LockTypeGlobal, TimeoutPeriod: 60},
		{Type: locks.LockTypeMessage, MessageID: "msg-3", TimeoutPeriod: 60},
		{Type: locks.LockTypeMessage, MessageID: "msg-4", TimeoutPeriod: 60},
		{Type: locks.LockTypeDevice, DeviceID: "dev-2", TimeoutPeriod: 60},
		{Type: locks.LockTypeDevice, DeviceID: "dev-3", TimeoutPeriod: 60},
	}
	for i := range toInsert {
		require.NoError(t, repo.Insert(ctx, &toInsert[i]))
	}

	found, err := repo.Find(ctx, locks.Query{})
	require.NoError(t, err)
	assert.Len(t, found, 5)
}

func TestLockRepository_FindForEvaluationScoping(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	toInsert := []locks.Lock{
		{Type: locks.LockTypeGlobal, TimeoutPeriod: 60},
		{Type: locks.LockTypeMessage, MessageID: "msg-5", TimeoutPeriod: 60},
		{Type: locks.LockTypeMessage, MessageID: "other-msg", TimeoutPeriod: 60},
		{Type: locks.LockTypeDevice, DeviceID: "dev-4", TimeoutPeriod: 60},
		{Type: locks.LockTypeDevice, DeviceID: "other-dev", TimeoutPeriod: 60},
	}
	for i := range toInsert {
		require.NoError(t, repo.Insert(ctx, &toInsert[i]))
	}

	found, err := repo.FindForEvaluation(ctx, "msg-5", []string{"dev-4"})
	require.NoError(t, err)
	require.Len(t, found, 3, "only the global lock, the matching message lock and the matching device lock apply")

	types := map[locks.LockType]locks.Lock{}
	for _, l := range found {
		types[l.Type] = l
	}
	assert.Contains(t, types, locks.LockTypeGlobal)
	assert.Equal(t, "msg-5", types[locks.LockTypeMessage].MessageID)
	assert.Equal(t, "dev-4", types[locks.LockTypeDevice].DeviceID)
}

func TestLockRepository_DeleteMany(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	repo := locks.NewRepository(infra.MongoDB)

	toInsert := []locks.Lock{
		{Type: locks.LockTypeDevice, DeviceID: "dev-5", TimeoutPeriod: 60},
		{Type: locks.LockTypeDevice, DeviceID: "dev-6", TimeoutPeriod: 60},
		{Type: locks.LockTypeMessage, MessageID: "msg-6", TimeoutPeriod: 60},
	}
	for i := range toInsert {
		require.NoError(t, repo.Insert(ctx, &toInsert[i]))
	}

	removed, err := repo.DeleteMany(ctx, locks.Query{Type: locks.LockTypeDevice})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	remaining, err := repo.Find(ctx, locks.Query{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, locks.LockTypeMessage, remaining[0].Type)
}

func TestGate_SuppressionAgainstStore(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	gate := locks.NewGate(locks.NewRepository(infra.MongoDB), createTestLogger())

	require.NoError(t, gate.AddLock(ctx, locks.LockTypeMessage, 60, "", "msg-7"))

	eval, err := gate.Evaluate(ctx, "msg-7", []string{"dev-7"})
	require.NoError(t, err)
	assert.True(t, eval.Suppressed)

	eval, err = gate.Evaluate(ctx, "unrelated-msg", []string{"dev-7"})
	require.NoError(t, err)
	assert.False(t, eval.Suppressed)
	assert.Equal(t, []string{"dev-7"}, eval.EligibleDevices([]string{"dev-7"}))
}
