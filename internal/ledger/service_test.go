package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	entries  []Entry
	balances map[string]Balance
	refKeys  map[string]bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		balances: make(map[string]Balance),
		refKeys:  make(map[string]bool),
	}
}

func subjectKey(subjectType, subjectID string) string {
	return subjectType + "/" + subjectID
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) ListEntries(ctx context.Context, subjectType, subjectID string, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepository) GetBalance(ctx context.Context, subjectType, subjectID string) (Balance, error) {
	b, ok := m.balances[subjectKey(subjectType, subjectID)]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return b, nil
}

func (m *mockRepository) ListSubjects(ctx context.Context, subjectType string) ([]Balance, error) {
	var out []Balance
	for _, b := range m.balances {
		if b.SubjectType == subjectType {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetBalanceForUpdate(ctx context.Context, subjectType, subjectID string) (Balance, error) {
	return t.mock.GetBalance(ctx, subjectType, subjectID)
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, e Entry) error {
	if e.RefKey != "" {
		if t.mock.refKeys[e.RefKey] {
			return ErrDuplicateRef
		}
		t.mock.refKeys[e.RefKey] = true
	}
	t.mock.entries = append(t.mock.entries, e)
	return nil
}

func (t *mockTxRepo) UpsertBalance(ctx context.Context, b Balance) error {
	t.mock.balances[subjectKey(b.SubjectType, b.SubjectID)] = b
	return nil
}

func TestAppendPairsEntryWithBalance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	entry, err := svc.Append(ctx, AppendInput{
		SubjectType: SubjectStock,
		SubjectID:   "42",
		Action:      ActionAdd,
		Delta:       10,
		ActorID:     7,
		Note:        "initial stock",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, entry.PreviousBalance)
	assert.Equal(t, 10.0, entry.NewBalance)
	assert.NotEmpty(t, entry.ID)

	entry, err = svc.Append(ctx, AppendInput{
		SubjectType: SubjectStock,
		SubjectID:   "42",
		Action:      ActionUse,
		Delta:       -4,
		ActorID:     7,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, entry.PreviousBalance)
	assert.Equal(t, 6.0, entry.NewBalance)

	balance, err := svc.CurrentBalance(ctx, SubjectStock, "42")
	require.NoError(t, err)
	assert.Equal(t, 6.0, balance)
}

func TestAppendRejectsNegativeBalance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		SubjectType: SubjectStock,
		SubjectID:   "42",
		Action:      ActionUse,
		Delta:       -1,
		ActorID:     1,
	})
	assert.ErrorIs(t, err, ErrNegativeBalance)
	assert.Empty(t, repo.entries)
}

func TestAppendAllowsNegativeWhenConfigured(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{AllowNegativeBalance: true})

	entry, err := svc.Append(context.Background(), AppendInput{
		SubjectType: SubjectStock,
		SubjectID:   "42",
		Action:      ActionUse,
		Delta:       -3,
		ActorID:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, -3.0, entry.NewBalance)
}

func TestAppendValidation(t *testing.T) {
	svc := NewService(newMockRepository(), ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{SubjectID: "1", Action: ActionAdd, Delta: 1})
	assert.Error(t, err)

	_, err = svc.Append(ctx, AppendInput{SubjectType: SubjectStock, SubjectID: "1", Action: "BOGUS", Delta: 1})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = svc.Append(ctx, AppendInput{SubjectType: SubjectStock, SubjectID: "1", Action: ActionAdd, Delta: 0})
	assert.ErrorIs(t, err, ErrInvalidDelta)
}

func TestAppendDeduplicatesRefKey(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	input := AppendInput{
		SubjectType: SubjectStock,
		SubjectID:   "42",
		Action:      ActionAdd,
		Delta:       5,
		ActorID:     1,
		RefKey:      "order:100:line:1",
	}
	_, err := svc.Append(ctx, input)
	require.NoError(t, err)

	_, err = svc.Append(ctx, input)
	assert.ErrorIs(t, err, ErrDuplicateRef)
	assert.Len(t, repo.entries, 1)
}

func TestReplayReproducesStoredBalance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	deltas := []float64{100, -30, 12.5, -2.5}
	for _, d := range deltas {
		action := ActionAdd
		if d < 0 {
			action = ActionUse
		}
		_, err := svc.Append(ctx, AppendInput{
			SubjectType: SubjectStock,
			SubjectID:   "7",
			Action:      action,
			Delta:       d,
			ActorID:     1,
		})
		require.NoError(t, err)
	}

	result, err := svc.Replay(ctx, SubjectStock, "7")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Entries)
	assert.True(t, result.InSync())
	assert.InDelta(t, 80.0, result.Replayed, 1e-9)
}

func TestReplayDetectsBrokenChain(t *testing.T) {
	repo := newMockRepository()
	repo.entries = append(repo.entries, Entry{
		ID:              "broken",
		SubjectType:     SubjectStock,
		SubjectID:       "9",
		Action:          ActionAdd,
		Delta:           5,
		PreviousBalance: 0,
		NewBalance:      6, // does not equal previous + delta
		CreatedAt:       time.Now(),
	})
	svc := NewService(repo, ServiceConfig{})

	_, err := svc.Replay(context.Background(), SubjectStock, "9")
	assert.Error(t, err)
}

func TestScanSubjectsFlagsDrift(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		SubjectType: SubjectCODCash, SubjectID: "55", Action: ActionAdd, Delta: 1180, ActorID: 1,
	})
	require.NoError(t, err)

	drifted, err := svc.ScanSubjects(ctx, SubjectCODCash)
	require.NoError(t, err)
	assert.Empty(t, drifted)

	// Tamper with the stored balance behind the ledger's back.
	key := subjectKey(SubjectCODCash, "55")
	b := repo.balances[key]
	b.Balance += 100
	repo.balances[key] = b

	drifted, err = svc.ScanSubjects(ctx, SubjectCODCash)
	require.NoError(t, err)
	require.Len(t, drifted, 1)
	assert.False(t, drifted[0].InSync())
}
