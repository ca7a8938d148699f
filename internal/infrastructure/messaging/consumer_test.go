package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{pending: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.pending) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type flakyAppender struct {
	failures int
	calls    int
	next     MovementAppender
}

func (f *flakyAppender) AppendMovement(ctx context.Context, m *entity.Movement) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.next.AppendMovement(ctx, m)
}

var (
	testCfg = Config{MovementsTopic: "stock.movement", ResetsTopic: "stock.reset"}
	now     = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	product = id.MustParse("01900000-0000-7000-8000-0000000000b1")
)

func services() (*stock.Service, *resets.Service) {
	store := memory.New()
	clock := func() time.Time { return now }
	return stock.NewService(store.Movements, nil, stock.Config{}).WithClock(clock),
		resets.NewService(store.Resets, nil, time.Minute).WithClock(clock)
}

func movementMsg(offset int64, body string) kafka.Message {
	return kafka.Message{Topic: testCfg.MovementsTopic, Partition: 0, Offset: offset, Value: []byte(body)}
}

const entryJSON = `{"productId":"01900000-0000-7000-8000-0000000000b1","timestamp":"2026-01-02T00:00:00Z",
	"kind":"entry","quantity":"10","unitCost":"4.25","source":"invoice","documentRef":"INV-1"}`

func collect(t *testing.T, svc *stock.Service) []entity.Movement {
	t.Helper()
	cur, err := svc.QueryRange(context.Background(), product, time.Time{}, now, stock.RangeOptions{})
	require.NoError(t, err)
	got, err := stock.Collect(context.Background(), cur)
	require.NoError(t, err)
	return got
}

func TestConsumer_Run(t *testing.T) {
	stockSvc, resetSvc := services()
	reader := newFakeReader(
		movementMsg(1, entryJSON),
		movementMsg(2, `not json`),
		movementMsg(3, `{"productId":"01900000-0000-7000-8000-0000000000b1","timestamp":"2026-01-03T00:00:00Z","kind":"exit","quantity":"1","source":"invoice"}`),
		movementMsg(1, entryJSON),
		kafka.Message{Topic: testCfg.ResetsTopic, Offset: 4, Value: []byte(
			`{"productId":"01900000-0000-7000-8000-0000000000b1","date":"2026-01-05T00:00:00Z","countedQuantity":"7","countedUnitCost":"4.00","idempotencyKey":"count-1"}`)},
		kafka.Message{Topic: "other", Offset: 5, Value: []byte(`{}`)},
	)
	c := NewConsumer(reader, stockSvc, resetSvc, testCfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)

	// Invalid, duplicate and unknown-topic messages are committed and skipped.
	assert.Equal(t, []int64{1, 2, 3, 1, 4, 5}, reader.committed)

	got := collect(t, stockSvc)
	require.Len(t, got, 1)
	assert.Equal(t, types.NewQuantity(10), got[0].Quantity)
	assert.Equal(t, "INV-1", got[0].DocumentRef)
	require.NotNil(t, got[0].IdempotencyKey)
	assert.Equal(t, "kafka:stock.movement:0:1", *got[0].IdempotencyKey)

	latest, found, err := resetSvc.LatestResetBefore(context.Background(), product, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.NewQuantity(7), latest.CountedQuantity)
}

func TestConsumer_HandleRetriesTransientErrors(t *testing.T) {
	stockSvc, resetSvc := services()
	flaky := &flakyAppender{failures: 2, next: stockSvc}
	reader := newFakeReader(movementMsg(9, entryJSON))
	c := NewConsumer(reader, flaky, resetSvc, testCfg, logger.NewNop())
	c.retryDelay = time.Millisecond

	err := c.Handle(context.Background(), movementMsg(9, entryJSON))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, []int64{9}, reader.committed)
	assert.Len(t, collect(t, stockSvc), 1)
}
