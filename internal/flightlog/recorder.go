package flightlog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"raspifpv/internal/wire"
)

const (
	DefaultQueueLen = 256
	maxBatch        = 64
)

type sampleWriter interface {
	StartFlight(ctx context.Context, at time.Time, source string) (int64, error)
	InsertSamples(ctx context.Context, flightID int64, entries []Entry) error
}

type RecorderStats struct {
	FlightID  int64  `json:"flight_id,omitempty"`
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	LastError string `json:"last_error,omitempty"`
}

// Recorder queues samples from the receive path and writes them on its own
// goroutine. Observe never blocks: a full queue drops the sample.
type Recorder struct {
	store  sampleWriter
	source string
	queue  chan Entry
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	flightID atomic.Int64
	written  atomic.Uint64
	dropped  atomic.Uint64
	lastErr  atomic.Value // string
}

func NewRecorder(store sampleWriter, source string, queueLen int) *Recorder {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	r := &Recorder{store: store, source: source, queue: make(chan Entry, queueLen), now: time.Now}
	r.lastErr.Store("")
	return r
}

// Observe has the telemetry.Observer signature.
func (r *Recorder) Observe(s wire.Sample) {
	select {
	case r.queue <- Entry{At: r.now(), Sample: s}:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(childCtx)
	}()
	return nil
}

// loop drains the queue until ctx is done, then flushes what is left.
// Cancellation only ends the loop; writes never see it, so a batch taken
// off the queue is always written.
func (r *Recorder) loop(ctx context.Context) {
	wctx := context.WithoutCancel(ctx)
	batch := make([]Entry, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			for {
				batch = r.fill(batch[:0])
				if len(batch) == 0 {
					return
				}
				r.write(wctx, batch)
			}
		case e := <-r.queue:
			batch = r.fill(append(batch[:0], e))
			r.write(wctx, batch)
		}
	}
}

func (r *Recorder) fill(batch []Entry) []Entry {
	for len(batch) < maxBatch {
		select {
		case e := <-r.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (r *Recorder) write(ctx context.Context, batch []Entry) {
	id := r.flightID.Load()
	if id == 0 {
		var err error
		id, err = r.store.StartFlight(ctx, batch[0].At, r.source)
		if err != nil {
			r.fail(err, len(batch))
			return
		}
		r.flightID.Store(id)
		log.Printf("flightlog flight started id=%d source=%s", id, r.source)
	}
	if err := r.store.InsertSamples(ctx, id, batch); err != nil {
		r.fail(err, len(batch))
		return
	}
	r.written.Add(uint64(len(batch)))
}

func (r *Recorder) fail(err error, n int) {
	r.dropped.Add(uint64(n))
	msg := err.Error()
	if prev, _ := r.lastErr.Load().(string); prev != msg {
		log.Printf("flightlog write failed: %v", err)
	}
	r.lastErr.Store(msg)
}

// Close stops the writer after flushing queued samples.
func (r *Recorder) Close() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		FlightID:  r.flightID.Load(),
		Written:   r.written.Load(),
		Dropped:   r.dropped.Load(),
		LastError: r.lastErr.Load().(string),
	}
}
