package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/codelensdev/codelens/internal/cache"
	"github.com/codelensdev/codelens/internal/llm"
	llmmock "github.com/codelensdev/codelens/internal/llm/mock"
	"github.com/codelensdev/codelens/internal/store"
	"github.com/codelensdev/codelens/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// memStore is an in-memory store.Store that mirrors the Postgres
// transition rules and records every status write for ordering assertions.
type memStore struct {
	mu       sync.Mutex
	analyses map[uuid.UUID]*models.Analysis
	history  map[uuid.UUID][]models.Status

	createErr error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		analyses: make(map[uuid.UUID]*models.Analysis),
		history:  make(map[uuid.UUID][]models.Status),
	}
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) CreateUser(_ context.Context, _ *models.User) error { return nil }
func (s *memStore) GetUserByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (s *memStore) GetUserByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (s *memStore) UpdateUserLastLogin(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

func (s *memStore) CreateAnalysis(_ context.Context, a *models.Analysis) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.analyses[a.ID] = &cp
	return nil
}

func (s *memStore) GetAnalysis(_ context.Context, id uuid.UUID) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) GetAnalysisForUser(_ context.Context, id uuid.UUID, userID uuid.UUID) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok || a.UserID == nil || *a.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ListAnalysesByUser(_ context.Context, userID uuid.UUID) ([]*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Analysis
	for _, a := range s.analyses {
		if a.UserID != nil && *a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

var memTransitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusProcessing, models.StatusFailed},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
}

func (s *memStore) UpdateAnalysisStatus(_ context.Context, id uuid.UUID, status models.Status, opts ...store.AnalysisUpdateOption) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok {
		return store.ErrNotFound
	}

	valid := false
	for _, next := range memTransitions[a.Status] {
		if next == status {
			valid = true
			break
		}
	}
	if !valid {
		return store.ErrInvalidTransition
	}

	a.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}
	var u store.AnalysisUpdate
	for _, opt := range opts {
		opt(&u)
	}
	if u.Result != nil {
		a.Result = u.Result
	}
	if u.ErrorMessage != nil {
		a.ErrorMessage = u.ErrorMessage
	}
	s.history[id] = append(s.history[id], status)
	return nil
}

func (s *memStore) DeleteAnalysis(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[id]
	if !ok || a.UserID == nil || *a.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.analyses, id)
	return nil
}

func (s *memStore) statusHistory(id uuid.UUID) []models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Status(nil), s.history[id]...)
}

type memCache struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Analysis
}

func newMemCache() *memCache {
	return &memCache{records: make(map[uuid.UUID]*models.Analysis)}
}

func (c *memCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *memCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *memCache) Ping(_ context.Context) error                                     { return nil }
func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.records {
		if cache.AnalysisKey(id) == key {
			delete(c.records, id)
		}
	}
	return nil
}

func (c *memCache) SetAnalysis(_ context.Context, a *models.Analysis, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *a
	c.records[a.ID] = &cp
	return nil
}

func (c *memCache) GetAnalysis(_ context.Context, id uuid.UUID) (*models.Analysis, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

func (c *memCache) cached(id uuid.UUID) (*models.Analysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.records[id]
	return a, ok
}

// --- helpers ---

func newTestService(st store.Store, client llm.Client) *Service {
	return NewService(st, client, newMemCache(), time.Second, time.Minute, 4)
}

func waitTerminal(t *testing.T, st *memStore, id uuid.UUID) *models.Analysis {
	t.Helper()
	var result *models.Analysis
	require.Eventually(t, func() bool {
		a, err := st.GetAnalysis(context.Background(), id)
		if err != nil {
			return false
		}
		if a.Status.Terminal() {
			result = a
			return true
		}
		return false
	}, 3*time.Second, 10*time.Millisecond, "analysis never reached a terminal state")
	return result
}

func validParams() SubmitParams {
	return SubmitParams{
		Code:     "print(1)",
		Language: models.LanguagePython,
		TaskType: models.TaskUnitTest,
	}
}

// --- tests ---

func TestSubmit_ReturnsPendingImmediately(t *testing.T) {
	st := newMemStore()
	// A blocking client must not delay Submit.
	svc := newTestService(st, llmmock.NewBlockingClient())

	start := time.Now()
	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Nil(t, a.Result)
	assert.Nil(t, a.ErrorMessage)
	assert.Nil(t, a.CompletedAt)
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestSubmit_EmptyCode(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, llmmock.NewClient())

	_, err := svc.Submit(context.Background(), SubmitParams{
		Language: models.LanguagePython,
		TaskType: models.TaskUnitTest,
	})
	require.Error(t, err)
	assert.Empty(t, st.analyses)
}

func TestProcess_Success(t *testing.T) {
	st := newMemStore()
	client := llmmock.NewClient()
	svc := newTestService(st, client)

	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	final := waitTerminal(t, st, a.ID)
	assert.Equal(t, models.StatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.NotEmpty(t, *final.Result)
	assert.Nil(t, final.ErrorMessage)
	assert.NotNil(t, final.CompletedAt)

	assert.Equal(t, []models.Status{models.StatusProcessing, models.StatusCompleted}, st.statusHistory(a.ID))

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.TaskUnitTest, calls[0].Task)
	assert.Equal(t, "print(1)", calls[0].Code)
	assert.Equal(t, models.LanguagePython, calls[0].Language)
}

func TestProcess_GatewayFailure(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, llmmock.NewFailingClient(&llm.BadStatusError{StatusCode: 500}))

	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	final := waitTerminal(t, st, a.ID)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Nil(t, final.Result)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "500")
	assert.NotNil(t, final.CompletedAt)
}

func TestProcess_UnreachableProvider(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, llmmock.NewFailingClient(llm.ErrUnreachable))

	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	final := waitTerminal(t, st, a.ID)
	assert.Equal(t, models.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "unreachable")
}

func TestProcess_UnknownTaskType(t *testing.T) {
	st := newMemStore()
	client := llmmock.NewFailingClient(llm.ErrUnknownTask)
	svc := newTestService(st, client)

	// Seed a record with a task kind that slipped past validation.
	id := uuid.New()
	require.NoError(t, st.CreateAnalysis(context.Background(), &models.Analysis{
		ID:        id,
		Code:      "print(1)",
		Language:  models.LanguagePython,
		TaskType:  models.TaskType("bogus"),
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}))

	svc.process(id)

	final, err := st.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Equal(t, "unknown task type", *final.ErrorMessage)
}

func TestProcess_DeletedBeforePickup(t *testing.T) {
	st := newMemStore()
	client := llmmock.NewClient()
	svc := newTestService(st, client)

	// process on an id that never existed must be a silent no-op.
	svc.process(uuid.New())

	assert.Empty(t, client.Calls())
	assert.Empty(t, st.analyses)
}

func TestProcess_PanicRecovered(t *testing.T) {
	st := newMemStore()
	panicking := &llmmock.Client{
		GenerateFunc: func(_ context.Context, _ models.TaskType, _ string, _ models.Language) (string, error) {
			panic("boom")
		},
	}
	svc := newTestService(st, panicking)

	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	final := waitTerminal(t, st, a.ID)
	assert.Equal(t, models.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Equal(t, "internal processing error", *final.ErrorMessage)
	assert.NotContains(t, *final.ErrorMessage, "boom", "the panic cause must not leak")
}

func TestProcess_TerminalStateIsStable(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, llmmock.NewClient())

	a, err := svc.Submit(context.Background(), validParams())
	require.NoError(t, err)

	first := waitTerminal(t, st, a.ID)
	time.Sleep(50 * time.Millisecond)
	second, err := st.GetAnalysis(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
}

func TestProcess_ManyConcurrentJobs(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, llmmock.NewClient(), newMemCache(), time.Second, time.Minute, 2)

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		a, err := svc.Submit(context.Background(), validParams())
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	for _, id := range ids {
		final := waitTerminal(t, st, id)
		assert.Equal(t, models.StatusCompleted, final.Status)
	}
}

func TestGetStatus_ServedFromCache(t *testing.T) {
	st := newMemStore()
	ca := newMemCache()
	svc := NewService(st, llmmock.NewClient(), ca, time.Second, time.Minute, 4)

	// Only the cache knows this record; a store lookup would be ErrNotFound.
	result := "cached result"
	id := uuid.New()
	require.NoError(t, ca.SetAnalysis(context.Background(), &models.Analysis{
		ID:       id,
		Code:     "print(1)",
		Language: models.LanguagePython,
		TaskType: models.TaskUnitTest,
		Status:   models.StatusCompleted,
		Result:   &result,
	}, time.Minute))

	a, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, a.Status)
	require.NotNil(t, a.Result)
	assert.Equal(t, "cached result", *a.Result)
}

func TestGetStatus_MissRefillsCache(t *testing.T) {
	st := newMemStore()
	ca := newMemCache()
	svc := NewService(st, llmmock.NewClient(), ca, time.Second, time.Minute, 4)

	id := uuid.New()
	require.NoError(t, st.CreateAnalysis(context.Background(), &models.Analysis{
		ID:        id,
		Code:      "print(1)",
		Language:  models.LanguagePython,
		TaskType:  models.TaskUnitTest,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}))

	a, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, a.Status)

	cached, ok := ca.cached(id)
	require.True(t, ok, "a cache miss must refill the cache from the store")
	assert.Equal(t, models.StatusPending, cached.Status)
}

func TestTransition_InvalidatesCachedView(t *testing.T) {
	st := newMemStore()
	ca := newMemCache()
	svc := NewService(st, llmmock.NewClient(), ca, time.Second, time.Minute, 4)

	id := uuid.New()
	a := &models.Analysis{
		ID:        id,
		Code:      "print(1)",
		Language:  models.LanguagePython,
		TaskType:  models.TaskUnitTest,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateAnalysis(context.Background(), a))
	require.NoError(t, ca.SetAnalysis(context.Background(), a, time.Minute))

	svc.process(id)

	// The Pending view cached at submission must not survive the
	// transitions; the next poll sees the terminal record.
	_, ok := ca.cached(id)
	assert.False(t, ok, "transitions must drop the cached view")

	polled, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, polled.Status)
}

func TestDelete_RemovesCacheEntry(t *testing.T) {
	st := newMemStore()
	ca := newMemCache()
	svc := NewService(st, llmmock.NewClient(), ca, time.Second, time.Minute, 4)

	userID := uuid.New()
	id := uuid.New()
	require.NoError(t, st.CreateAnalysis(context.Background(), &models.Analysis{
		ID:        id,
		UserID:    &userID,
		Code:      "print(1)",
		Language:  models.LanguagePython,
		TaskType:  models.TaskUnitTest,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}))
	svc.process(id)

	// Populate the cache through a poll, then delete.
	_, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	_, ok := ca.cached(id)
	require.True(t, ok)

	require.NoError(t, svc.Delete(context.Background(), id, userID))

	_, ok = ca.cached(id)
	assert.False(t, ok, "delete must drop the cached view")

	_, err = st.GetAnalysis(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = svc.Delete(context.Background(), id, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_OwnershipMismatchIsNotFound(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st, llmmock.NewClient())

	owner := uuid.New()
	params := validParams()
	params.UserID = &owner

	a, err := svc.Submit(context.Background(), params)
	require.NoError(t, err)
	waitTerminal(t, st, a.ID)

	err = svc.Delete(context.Background(), a.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Still present for the real owner.
	_, err = svc.HistoryDetail(context.Background(), a.ID, owner)
	assert.NoError(t, err)
}
