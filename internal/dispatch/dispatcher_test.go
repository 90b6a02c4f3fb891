package dispatch

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]Fact
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, batch []Fact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fact, len(batch))
	copy(cp, batch)
	p.batches = append(p.batches, cp)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func (p *recordingPublisher) largestBatch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		if len(b) > n {
			n = len(b)
		}
	}
	return n
}

func TestDispatcherFlushesOnBatchSize(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(pub, 100, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < 3; i++ {
		require.True(t, d.Enqueue(Fact{Type: TypeEventRecorded, Key: "u1"}))
	}
	assert.Eventually(t, func() bool { return pub.total() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
	assert.Equal(t, 3, pub.largestBatch())
}

func TestDispatcherFlushesOnTimer(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(pub, 100, 50, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(Fact{Type: TypeEnrollmentRecorded, Key: "u1"})
	assert.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	d := New(pub, 100, 50, time.Hour)
	for i := 0; i < 5; i++ {
		d.Enqueue(Fact{Type: TypeEventRecorded})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Start(ctx)
	d.Wait()

	assert.Equal(t, 5, pub.total())
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	d := New(&recordingPublisher{}, 1, 10, time.Hour)

	assert.True(t, d.Enqueue(Fact{Type: TypeEventRecorded}))
	assert.False(t, d.Enqueue(Fact{Type: TypeEventRecorded}))
	assert.Equal(t, int64(1), d.Dropped())
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := New(pub, 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	assert.True(t, d.Enqueue(Fact{Type: TypeEventRecorded}))
	assert.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.Enqueue(Fact{Type: TypeEventRecorded}))
	assert.Eventually(t, func() bool { return pub.total() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
}

func TestEncodeMessages(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msgs, err := encodeMessages([]Fact{{Type: TypeAssignmentCreated, Key: "u1", At: at, Payload: map[string]string{"variant": "A"}}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("u1"), msgs[0].Key)
	assert.Equal(t, at, msgs[0].Time)
	assert.JSONEq(t, `{"type":"assignment.created","key":"u1","at":"2025-01-02T03:04:05Z","payload":{"variant":"A"}}`, string(msgs[0].Value))
	assert.Equal(t, "fact-type", msgs[0].Headers[0].Key)

	msgs, err = encodeMessages([]Fact{{Type: TypeEnrollmentRecorded, ID: "k1", Key: "u1", At: at}})
	require.NoError(t, err)
	require.Len(t, msgs[0].Headers, 2)
	assert.Equal(t, "fact-id", msgs[0].Headers[1].Key)
	assert.Equal(t, []byte("k1"), msgs[0].Headers[1].Value)

	_, err = encodeMessages([]Fact{{Type: "bad", Payload: make(chan int)}})
	assert.Error(t, err)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "abtest.facts")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
