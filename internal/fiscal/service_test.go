package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-ledger/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	periods   map[int64]*Period
	nextID    int64
	checklist map[int64][]ChecklistItem
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		periods:   make(map[int64]*Period),
		nextID:    1,
		checklist: make(map[int64][]ChecklistItem),
	}
}

func (m *mockRepository) Get(_ context.Context, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (m *mockRepository) List(_ context.Context) ([]Period, error) {
	out := make([]Period, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) Covering(_ context.Context, on time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.Covers(on) {
			return *p, nil
		}
	}
	return Period{}, ErrNoPeriod
}

func (m *mockRepository) HasOverlap(_ context.Context, start, end time.Time) (bool, error) {
	for _, p := range m.periods {
		if !start.After(p.EndDate) && !end.Before(p.StartDate) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) Insert(_ context.Context, in CreatePeriodInput) (Period, error) {
	p := Period{
		ID:        m.nextID,
		Code:      in.Code,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    StatusOpen,
	}
	m.nextID++
	stored := p
	m.periods[p.ID] = &stored
	return p, nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, upd StatusUpdate) (Period, error) {
	p, ok := m.periods[upd.ID]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	if p.Status != upd.From {
		return Period{}, ErrInvalidTransition
	}
	p.Status = upd.To
	return *p, nil
}

func (m *mockRepository) ClosingChecklist(_ context.Context, p Period) ([]ChecklistItem, error) {
	return m.checklist[p.ID], nil
}

// ============================================================================
// FIXTURES
// ============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) (*Service, *mockRepository, *shared.Lease) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lease := shared.NewLease(client, time.Second)

	repo := newMockRepository()
	svc := NewService(repo, nil, lease)
	svc.WithNow(func() time.Time { return date(2026, 6, 15) })
	return svc, repo, lease
}

func seedPeriod(repo *mockRepository, status Status) int64 {
	id := repo.nextID
	repo.nextID++
	repo.periods[id] = &Period{
		ID:        id,
		Code:      "2026-06",
		StartDate: date(2026, 6, 1),
		EndDate:   date(2026, 6, 30),
		Status:    status,
	}
	return id
}

// ============================================================================
// TRANSITION POLICY
// ============================================================================

func TestValidateTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusOpen, StatusLocked},
		{StatusLocked, StatusClosed},
		{StatusLocked, StatusOpen},
		{StatusClosed, StatusOpen},
	}
	for _, tc := range legal {
		assert.NoError(t, ValidateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	illegal := []struct{ from, to Status }{
		{StatusOpen, StatusClosed}, // must lock first
		{StatusOpen, StatusOpen},
		{StatusClosed, StatusLocked},
		{StatusClosed, StatusClosed},
		{StatusLocked, StatusLocked},
	}
	for _, tc := range illegal {
		assert.ErrorIs(t, ValidateTransition(tc.from, tc.to), ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestEnsurePostable(t *testing.T) {
	open := Period{Status: StatusOpen}
	locked := Period{Status: StatusLocked}
	closed := Period{Status: StatusClosed}

	assert.NoError(t, EnsurePostable(open, false))
	assert.ErrorIs(t, EnsurePostable(locked, false), ErrPeriodLocked)
	assert.ErrorIs(t, EnsurePostable(closed, false), ErrPeriodLocked)
	assert.NoError(t, EnsurePostable(locked, true))
	assert.NoError(t, EnsurePostable(closed, true))
}

// ============================================================================
// SERVICE
// ============================================================================

func TestCreatePeriod(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.Create(context.Background(), CreatePeriodInput{
		Code:      "2026-06",
		StartDate: date(2026, 6, 1),
		EndDate:   date(2026, 6, 30),
		ActorID:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, p.Status)

	_, err = svc.Create(context.Background(), CreatePeriodInput{
		Code:      "2026-06b",
		StartDate: date(2026, 6, 15),
		EndDate:   date(2026, 7, 15),
		ActorID:   1,
	})
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = svc.Create(context.Background(), CreatePeriodInput{
		Code:      "2026-07",
		StartDate: date(2026, 7, 31),
		EndDate:   date(2026, 7, 1),
		ActorID:   1,
	})
	assert.Error(t, err)
}

func TestLockUnlockClose(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedPeriod(repo, StatusOpen)

	p, err := svc.Lock(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusLocked, p.Status)

	p, err = svc.Unlock(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, p.Status)

	_, err = svc.Close(context.Background(), id, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Lock(context.Background(), id, 1)
	require.NoError(t, err)
	p, err = svc.Close(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, p.Status)
}

func TestCloseBlockedByChecklist(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedPeriod(repo, StatusLocked)
	repo.checklist[id] = []ChecklistItem{
		{Code: "draft_journal_entries", Label: "Draft journal entries", Count: 3, Blocking: true},
	}

	_, err := svc.Close(context.Background(), id, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusLocked, repo.periods[id].Status)

	repo.checklist[id] = []ChecklistItem{
		{Code: "draft_invoices", Label: "Draft invoices", Count: 5, Blocking: false},
	}
	p, err := svc.Close(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, p.Status)
}

func TestReopenRequiresReason(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedPeriod(repo, StatusClosed)

	_, err := svc.Reopen(context.Background(), id, 1, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	p, err := svc.Reopen(context.Background(), id, 1, "late vendor bill for June")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, p.Status)
}

func TestTransitionSerializedByLease(t *testing.T) {
	svc, repo, lease := newTestService(t)
	id := seedPeriod(repo, StatusOpen)

	// Another administrator holds the lease.
	require.NoError(t, lease.Acquire(context.Background(), shared.PeriodLeaseKey(), "actor-99"))

	_, err := svc.Lock(context.Background(), id, 1)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Equal(t, StatusOpen, repo.periods[id].Status)

	require.NoError(t, lease.Release(context.Background(), shared.PeriodLeaseKey(), "actor-99"))
	_, err = svc.Lock(context.Background(), id, 1)
	require.NoError(t, err)
}

func TestGuard(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedPeriod(repo, StatusOpen)

	p, err := svc.Guard(context.Background(), date(2026, 6, 10), false)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	_, err = svc.Guard(context.Background(), date(2026, 9, 10), false)
	assert.ErrorIs(t, err, ErrNoPeriod)

	repo.periods[id].Status = StatusLocked
	_, err = svc.Guard(context.Background(), date(2026, 6, 10), false)
	assert.ErrorIs(t, err, ErrPeriodLocked)

	_, err = svc.Guard(context.Background(), date(2026, 6, 10), true)
	require.NoError(t, err)
}
