package numbering

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

type memoryStore struct {
	mu      sync.Mutex
	format  Format
	numbers map[int64]map[string]struct{}
}

func newMemoryStore(format Format) *memoryStore {
	return &memoryStore{format: format, numbers: make(map[int64]map[string]struct{})}
}

func scopeKey(scope Scope) int64 {
	if scope.Global {
		return -1
	}
	return scope.TenantID
}

func (s *memoryStore) MaxSequence(ctx context.Context, scope Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for number := range s.numbers[scopeKey(scope)] {
		if seq, ok := s.format.Parse(number); ok && seq > max {
			max = seq
		}
	}
	return max, nil
}

func (s *memoryStore) Exists(ctx context.Context, scope Scope, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.numbers[scopeKey(scope)][number]
	return ok, nil
}

func (s *memoryStore) claimer(scope Scope) ClaimFunc {
	return func(ctx context.Context, number string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		key := scopeKey(scope)
		if s.numbers[key] == nil {
			s.numbers[key] = make(map[string]struct{})
		}
		if _, ok := s.numbers[key][number]; ok {
			return fmt.Errorf("%w: number %s taken", shared.ErrConflict, number)
		}
		s.numbers[key][number] = struct{}{}
		return nil
	}
}

var invoiceFormat = Format{Prefix: "INV", Separator: "#", MinDigits: 3}

func TestRenderAndParse(t *testing.T) {
	assert.Equal(t, "INV#001", invoiceFormat.Render(1))
	assert.Equal(t, "INV#1234", invoiceFormat.Render(1234))
	assert.Equal(t, "CONTRACT-042", Format{Prefix: "CONTRACT", Separator: "-", MinDigits: 3}.Render(42))

	seq, ok := invoiceFormat.Parse("INV#017")
	require.True(t, ok)
	assert.Equal(t, int64(17), seq)
	_, ok = invoiceFormat.Parse("EST#017")
	assert.False(t, ok)
	_, ok = invoiceFormat.Parse("INV#17a")
	assert.False(t, ok)
}

func TestAllocateContinuesFromMax(t *testing.T) {
	store := newMemoryStore(invoiceFormat)
	store.numbers[7] = map[string]struct{}{"INV#004": {}, "INV#009": {}}
	gen := NewGenerator(invoiceFormat, false, store)

	number, err := gen.Allocate(context.Background(), 7, store.claimer(gen.Scope(7)))
	require.NoError(t, err)
	assert.Equal(t, "INV#010", number)

	number, err = gen.Allocate(context.Background(), 8, store.claimer(gen.Scope(8)))
	require.NoError(t, err)
	assert.Equal(t, "INV#001", number)
}

func TestAllocateGlobalScopeIgnoresTenant(t *testing.T) {
	format := Format{Prefix: "EST", Separator: "#", MinDigits: 3}
	store := newMemoryStore(format)
	gen := NewGenerator(format, true, store)

	first, err := gen.Allocate(context.Background(), 1, store.claimer(gen.Scope(1)))
	require.NoError(t, err)
	second, err := gen.Allocate(context.Background(), 2, store.claimer(gen.Scope(2)))
	require.NoError(t, err)
	assert.Equal(t, "EST#001", first)
	assert.Equal(t, "EST#002", second)
}

func TestAllocateRetriesOnConflict(t *testing.T) {
	store := newMemoryStore(invoiceFormat)
	gen := NewGenerator(invoiceFormat, false, store)
	conflicts := 0
	claim := func(ctx context.Context, number string) error {
		if conflicts < 3 {
			conflicts++
			return fmt.Errorf("%w: raced", shared.ErrConflict)
		}
		return store.claimer(gen.Scope(1))(ctx, number)
	}

	number, err := gen.Allocate(context.Background(), 1, claim)
	require.NoError(t, err)
	assert.Equal(t, "INV#004", number)
}

func TestAllocateFallsBackToTimestamp(t *testing.T) {
	store := newMemoryStore(invoiceFormat)
	clock := time.UnixMilli(1_700_000_123_456)
	var fallbacks []string
	gen := NewGenerator(invoiceFormat, false, store,
		WithMaxAttempts(5),
		WithClock(func() time.Time { return clock }),
		WithFallbackHook(func(prefix string) { fallbacks = append(fallbacks, prefix) }),
	)
	attempts := 0
	claim := func(ctx context.Context, number string) error {
		attempts++
		if attempts <= 5 {
			return fmt.Errorf("%w: raced", shared.ErrConflict)
		}
		return nil
	}

	number, err := gen.Allocate(context.Background(), 1, claim)
	require.NoError(t, err)
	assert.Equal(t, "INV#123456", number)
	assert.Equal(t, 6, attempts)
	assert.Equal(t, []string{"INV"}, fallbacks)
}

func TestAllocateStopsOnNonConflictError(t *testing.T) {
	store := newMemoryStore(invoiceFormat)
	gen := NewGenerator(invoiceFormat, false, store)
	boom := fmt.Errorf("connection reset")

	_, err := gen.Allocate(context.Background(), 1, func(ctx context.Context, number string) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestAllocateConcurrentNumbersAreDistinct(t *testing.T) {
	store := newMemoryStore(invoiceFormat)
	gen := NewGenerator(invoiceFormat, false, store)
	ctx := context.Background()

	const n = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := gen.Allocate(ctx, 3, store.claimer(gen.Scope(3)))
			if err != nil {
				t.Errorf("allocate failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if _, dup := results[number]; dup {
				t.Errorf("duplicate %s", number)
			}
			results[number] = struct{}{}
		}()
	}
	wg.Wait()
	require.Len(t, results, n)
}
