package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "stockledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = m.val
	}
	return nil
}

// mockQuerier simulates sys_sequences for a single key.
type mockQuerier struct {
	mu      sync.Mutex
	current int64
	calls   int
	err     error
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	increment := int64(1)
	if len(args) == 2 {
		increment = args[1].(int64)
	}
	m.current += increment
	return &mockRow{val: m.current}
}

var productCodes = corenumerator.Config{Prefix: "PRD", PadWidth: 5, ResetPeriod: "never"}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()

	first, err := svc.GetNextNumber(ctx, productCodes, nil, time.Now())
	require.NoError(t, err)
	second, err := svc.GetNextNumber(ctx, productCodes, nil, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "PRD-00001", first)
	assert.Equal(t, "PRD-00002", second)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_YearlyFormat(t *testing.T) {
	svc := New(&mockQuerier{})
	period := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	code, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("CNT"), nil, period)
	require.NoError(t, err)
	assert.Equal(t, "CNT-2024-00001", code)
}

func TestGetNextNumber_CachedReservesRanges(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 3}

	var got []string
	for range 4 {
		code, err := svc.GetNextNumber(context.Background(), productCodes, opts, time.Now())
		require.NoError(t, err)
		got = append(got, code)
	}

	assert.Equal(t, []string{"PRD-00001", "PRD-00002", "PRD-00003", "PRD-00004"}, got)
	assert.Equal(t, 2, q.calls, "second range reserved only after the first is exhausted")
}

func TestGetNextNumber_CachedConcurrent(t *testing.T) {
	svc := New(&mockQuerier{})
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := svc.GetNextNumber(context.Background(), productCodes, opts, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			seen[code] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestSetNextNumber_DropsCachedRange(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 5}
	ctx := context.Background()

	_, err := svc.GetNextNumber(ctx, productCodes, opts, time.Now())
	require.NoError(t, err)

	require.NoError(t, svc.SetNextNumber(ctx, productCodes, time.Now(), 100))
	assert.NotContains(t, svc.ranges, productCodes.Key(time.Now()))
}

func TestGetNextNumber_Error(t *testing.T) {
	svc := New(&mockQuerier{err: errors.New("connection refused")})

	_, err := svc.GetNextNumber(context.Background(), productCodes, nil, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRD")
}
