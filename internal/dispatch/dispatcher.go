package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Fact types emitted after a successful write.
const (
	TypeAssignmentCreated  = "assignment.created"
	TypeEventRecorded      = "event.recorded"
	TypeEnrollmentRecorded = "enrollment.recorded"
)

// Fact is a write that already committed to the store, forwarded downstream
// on a best-effort basis.
type Fact struct {
	Type string `json:"type"`
	// ID is set for facts that are unique per (user, course) so consumers
	// can drop redeliveries.
	ID      string    `json:"id,omitempty"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Sink accepts facts without blocking. A false return means the fact was dropped.
type Sink interface {
	Enqueue(f Fact) bool
}

// Publisher delivers one batch of facts.
type Publisher interface {
	Publish(ctx context.Context, batch []Fact) error
	Close() error
}

// Dispatcher batches facts from a bounded queue and hands them to a Publisher.
// Publish failures are logged and the batch is dropped; callers never see them.
type Dispatcher struct {
	queue        chan Fact
	publisher    Publisher
	batchMaxSize int
	batchMaxWait time.Duration
	flushTimeout time.Duration
	done         chan struct{}
	dropped      atomic.Int64
}

func New(publisher Publisher, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration) *Dispatcher {
	if queueMaxSize <= 0 {
		queueMaxSize = 1
	}
	if batchMaxSize <= 0 {
		batchMaxSize = 1
	}
	if batchMaxWait <= 0 {
		batchMaxWait = 200 * time.Millisecond
	}
	return &Dispatcher{
		queue:        make(chan Fact, queueMaxSize),
		publisher:    publisher,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		flushTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is cancelled, then drains what is
// already queued and returns. Use Wait to block until the loop exits.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)

		batch := make([]Fact, 0, d.batchMaxSize)
		t := time.NewTimer(d.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(d.batchMaxWait)
		}

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			if err := d.publisher.Publish(ctx, batch); err != nil {
				log.Error().Err(err).Int("dropped", len(batch)).Msg("dispatch: batch publish failed")
			} else {
				log.Debug().Int("size", len(batch)).Msg("dispatch: batch published")
			}
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				drainCtx, cancel := context.WithTimeout(context.Background(), d.flushTimeout)
			drain:
				for {
					select {
					case f := <-d.queue:
						batch = append(batch, f)
						if len(batch) >= d.batchMaxSize {
							flush(drainCtx)
						}
					default:
						break drain
					}
				}
				flush(drainCtx)
				cancel()
				return
			case f := <-d.queue:
				batch = append(batch, f)
				if len(batch) >= d.batchMaxSize {
					flush(ctx)
				}
			case <-t.C:
				flush(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (d *Dispatcher) Wait() { <-d.done }

func (d *Dispatcher) Enqueue(f Fact) bool {
	select {
	case d.queue <- f:
		return true
	default:
		n := d.dropped.Add(1)
		log.Warn().Str("type", f.Type).Int64("dropped_total", n).Msg("dispatch: queue full, fact dropped")
		return false
	}
}

// Dropped reports how many facts were rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Discard is a Sink that accepts and forgets every fact.
var Discard Sink = discard{}

type discard struct{}

func (discard) Enqueue(Fact) bool { return true }
