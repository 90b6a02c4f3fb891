package assignment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/storage/memory"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]domain.Variant
	getErr error
}

func newMapCache() *mapCache { return &mapCache{values: map[string]domain.Variant{}} }

func (c *mapCache) Get(_ context.Context, k string) (domain.Variant, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[k]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, k string, v domain.Variant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k] = v
	return nil
}

type countingSink struct {
	mu    sync.Mutex
	facts []dispatch.Fact
}

func (s *countingSink) Enqueue(f dispatch.Fact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, f)
	return true
}

func TestAssignIsStable(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New())

	first, err := svc.Assign(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, first.Valid())

	for i := 0; i < 20; i++ {
		again, err := svc.Assign(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssignNeverRedraws(t *testing.T) {
	ctx := context.Background()
	draws := 0
	flip := []domain.Variant{domain.VariantB, domain.VariantA}
	svc := NewService(memory.New(), WithPicker(func() domain.Variant {
		v := flip[draws%2]
		draws++
		return v
	}))

	v1, err := svc.Assign(ctx, "user-1")
	require.NoError(t, err)
	v2, err := svc.Assign(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, domain.VariantB, v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, draws)
}

func TestAssignConcurrentFirstContactAgrees(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &countingSink{}

	var mu sync.Mutex
	n := 0
	svc := NewService(store, WithSink(sink), WithPicker(func() domain.Variant {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n%2 == 0 {
			return domain.VariantA
		}
		return domain.VariantB
	}))

	const callers = 16
	results := make([]domain.Variant, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.Assign(ctx, "fresh-token")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	stored, err := store.FindAssignment(ctx, "fresh-token")
	require.NoError(t, err)
	for _, v := range results {
		assert.Equal(t, stored.Variant, v)
	}
	assert.Len(t, sink.facts, 1)
	assert.Equal(t, dispatch.TypeAssignmentCreated, sink.facts[0].Type)
}

func TestRandomPickerProducesBothVariants(t *testing.T) {
	seen := map[domain.Variant]int{}
	for i := 0; i < 1000; i++ {
		seen[RandomPicker()]++
	}
	assert.Len(t, seen, 2)
	assert.Greater(t, seen[domain.VariantA], 350)
	assert.Greater(t, seen[domain.VariantB], 350)
}

func TestAssignUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	store := memory.New()
	svc := NewService(store, WithCache(cache), WithPicker(func() domain.Variant { return domain.VariantA }))

	v, err := svc.Assign(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, domain.VariantA, cache.values["u"])

	cache.values["cached-only"] = domain.VariantB
	v, err = svc.Assign(ctx, "cached-only")
	require.NoError(t, err)
	assert.Equal(t, domain.VariantB, v)
}

func TestAssignFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(memory.New(), WithCache(cache), WithPicker(func() domain.Variant { return domain.VariantB }))

	v, err := svc.Assign(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, domain.VariantB, v)
}

type failingStore struct{}

func (failingStore) FindAssignment(context.Context, string) (domain.Assignment, error) {
	return domain.Assignment{}, domain.ErrPersistence
}

func (failingStore) InsertAssignmentIfAbsent(context.Context, domain.Assignment) (domain.Assignment, bool, error) {
	return domain.Assignment{}, false, domain.ErrPersistence
}

func TestAssignSurfacesPersistenceErrors(t *testing.T) {
	_, err := NewService(failingStore{}).Assign(context.Background(), "u")
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
