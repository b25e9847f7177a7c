package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/scanner-service/internal/domain"
)

func newTestManager(t *testing.T, store *memoryStore, clock *fakeClock) *SessionManager {
	t.Helper()
	deps := Dependencies{Gateway: &stubGateway{}, Now: clock.Now}
	if store != nil {
		deps.Store = store
	}
	m := NewSessionManager(ManagerConfig{Options: DefaultOptions(), IdleTTL: 10 * time.Minute}, deps, nil)
	t.Cleanup(m.Close)
	return m
}

func TestSessionManager_StartAndGet(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m := newTestManager(t, store, newFakeClock())

	o, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationMove, DeviceID: "dev-1", OperatorID: "op-1"})
	require.NoError(t, err)
	id := o.Info().ID
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, m.Active())

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Same(t, o, got)

	rec, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "dev-1", rec.DeviceID)
	assert.Equal(t, domain.PhaseScanSource, rec.State.Phase)
}

func TestSessionManager_StartRejectsUnknownOperation(t *testing.T) {
	m := newTestManager(t, nil, newFakeClock())

	_, err := m.Start(context.Background(), StartSessionCommand{Operation: "cycle_count"})

	assert.ErrorIs(t, err, domain.ErrUnknownOperation)
	assert.Equal(t, 0, m.Active())
}

func TestSessionManager_GetUnknown(t *testing.T) {
	m := newTestManager(t, newMemoryStore(), newFakeClock())

	_, err := m.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_EvictAndResume(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	clock := newFakeClock()
	m := newTestManager(t, store, clock)

	o, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationMove, DeviceID: "dev-1"})
	require.NoError(t, err)
	id := o.Info().ID
	_, err = o.ScanItem(ctx, "LP-1")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, m.EvictIdle(), "still within the TTL")

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle())
	assert.Equal(t, 0, m.Active())

	resumed, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.NotSame(t, o, resumed)
	snap := resumed.Snapshot()
	assert.Equal(t, domain.PhaseScanDestination, snap.State.Phase)
	assert.Equal(t, "dev-1", snap.DeviceID)
	assert.Equal(t, 1, m.Active())
}

func TestSessionManager_Finish(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m := newTestManager(t, store, newFakeClock())

	o, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationPick})
	require.NoError(t, err)
	id := o.Info().ID

	require.NoError(t, m.Finish(ctx, id))
	assert.Equal(t, 0, m.Active())
	_, ok := store.Get(id)
	assert.False(t, ok)

	_, err = o.ScanItem(ctx, "PICK-1")
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.ErrorIs(t, m.Finish(ctx, id), ErrSessionNotFound)
}

type gatedStore struct {
	*memoryStore
	block   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Save(ctx context.Context, rec SessionRecord) error {
	if s.block.Load() {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	return s.memoryStore.Save(ctx, rec)
}

func TestSessionManager_FinishWinsOverPendingSnapshotWrite(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{memoryStore: newMemoryStore(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewSessionManager(ManagerConfig{Options: DefaultOptions(), IdleTTL: 10 * time.Minute},
		Dependencies{Gateway: &stubGateway{}, Store: store, Now: newFakeClock().Now}, nil)
	t.Cleanup(m.Close)

	o, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationMove, DeviceID: "dev-1"})
	require.NoError(t, err)
	id := o.Info().ID

	store.block.Store(true)
	scanned := make(chan error, 1)
	go func() {
		_, err := o.ScanItem(ctx, "LP-1")
		scanned <- err
	}()
	<-store.entered

	finished := make(chan error, 1)
	go func() { finished <- m.Finish(ctx, id) }()
	select {
	case <-finished:
		t.Fatal("finish returned while a snapshot write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	require.NoError(t, <-scanned)
	require.NoError(t, <-finished)

	_, ok := store.Get(id)
	assert.False(t, ok, "finished session must not be resurrected")
	_, err = m.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_WithoutStore(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, newFakeClock())

	o, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationPack})
	require.NoError(t, err)

	require.NoError(t, m.Finish(ctx, o.Info().ID))
	assert.ErrorIs(t, m.Finish(ctx, o.Info().ID), ErrSessionNotFound)
	_, err = m.Get(ctx, o.Info().ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_RunSweeperStopsWithContext(t *testing.T) {
	m := newTestManager(t, nil, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.RunSweeper(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSessionManager_Resumable(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, newMemoryStore(), clock)

	first, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationMove, DeviceID: "dev-1"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := m.Start(ctx, StartSessionCommand{Operation: domain.OperationPick, DeviceID: "dev-1"})
	require.NoError(t, err)
	_, err = m.Start(ctx, StartSessionCommand{Operation: domain.OperationPack, DeviceID: "dev-2"})
	require.NoError(t, err)

	got, err := m.Resumable(ctx, "dev-1", 10)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.Info().ID, got[0].SessionID)
	assert.Equal(t, domain.OperationPick, got[0].Operation)
	assert.Equal(t, first.Info().ID, got[1].SessionID)
	assert.Equal(t, domain.PhaseScanSource, got[1].Phase)
}

func TestSessionManager_ResumableWithoutLister(t *testing.T) {
	m := newTestManager(t, nil, newFakeClock())

	got, err := m.Resumable(context.Background(), "dev-1", 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}
