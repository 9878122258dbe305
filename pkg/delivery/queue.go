package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crewtimer/lynxbridge/pkg/domain"
)

// Store is the slice of the lap store the queue needs: persisting status
// transitions and reading back unsent laps at startup.
type Store interface {
	Upsert(lap *domain.Lap)
	Patch(uuid string, mutate func(lap *domain.Lap)) bool
	Laps() []domain.Lap
}

const defaultRetryDelay = 20 * time.Second

// Queue buffers changed laps and ships them to the results service in
// batches. Failed items are prepended back onto the pending list and the
// whole batch is retried after a fixed delay. Delivery is at-least-once;
// the remote side dedupes by uuid.
type Queue struct {
	store      Store
	tx         Transport
	retryDelay time.Duration

	mu         sync.Mutex
	pending    []domain.Lap
	inFlight   []domain.Lap
	sending    bool
	retryTimer *time.Timer
	stopped    bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetryDelay overrides the delay before a failed batch is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) { q.retryDelay = d }
}

func NewQueue(store Store, tx Transport, opts ...Option) *Queue {
	q := &Queue{
		store:      store,
		tx:         tx,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue marks the lap as pending transmission, persists that status, and
// kicks a send cycle if none is in flight.
func (q *Queue) Enqueue(lap domain.Lap) {
	lap.Status = domain.StatusTxPend
	q.store.Upsert(&lap)

	q.mu.Lock()
	q.pending = append(q.pending, lap)
	q.mu.Unlock()

	go q.sendCycle()
}

// RequeueUnsent re-enters every stored lap whose delivery status is not OK.
// Called once at startup after the store is loaded.
func (q *Queue) RequeueUnsent() {
	for _, lap := range q.store.Laps() {
		if lap.Status != domain.StatusOK {
			q.Enqueue(lap)
		}
	}
}

// ClearPending empties both lists without touching persisted status. Used
// when the operator switches regattas.
func (q *Queue) ClearPending() {
	q.mu.Lock()
	q.pending = nil
	q.inFlight = nil
	q.mu.Unlock()
}

// Stop cancels any scheduled retry. In-flight sends complete or fail on
// their own.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	q.mu.Unlock()
}

// sendCycle moves the pending list to in-flight and transmits it as one
// batch. Only one cycle runs at a time; the sending flag stays set across
// the retry window so newly enqueued laps wait for the timer.
func (q *Queue) sendCycle() {
	q.mu.Lock()
	if q.sending || q.stopped || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	q.sending = true
	q.inFlight = q.pending
	q.pending = nil
	items := make([]domain.TxLapItem, len(q.inFlight))
	for i, lap := range q.inFlight {
		items[i] = domain.TxLapItem{UUID: lap.UUID, Op: "store-lap", Data: lap}
	}
	q.mu.Unlock()

	acks, err := q.tx.Send(context.Background(), items)

	q.mu.Lock()
	batch := q.inFlight
	q.inFlight = nil
	if len(batch) == 0 {
		// regatta reset while the batch was on the wire
		q.sending = false
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	var failed []domain.Lap
	if err != nil {
		log.Warn().Err(err).Int("count", len(batch)).Msg("lap batch send failed")
		for _, lap := range batch {
			q.store.Patch(lap.UUID, func(l *domain.Lap) { l.Status = domain.StatusFail })
		}
		failed = batch
	} else {
		for i, lap := range batch {
			ok := i < len(acks) && acks[i].Code == "OK"
			status := domain.StatusOK
			if !ok {
				status = domain.StatusFail
				log.Warn().Str("uuid", lap.UUID).Str("keyid", lap.KeyID).Msg("lap rejected by results service")
				failed = append(failed, lap)
			}
			q.store.Patch(lap.UUID, func(l *domain.Lap) { l.Status = status })
		}
	}

	q.mu.Lock()
	if len(failed) > 0 {
		// retry failed items ahead of anything enqueued meanwhile
		q.pending = append(failed, q.pending...)
		if !q.stopped {
			q.retryTimer = time.AfterFunc(q.retryDelay, q.retryFire)
		}
		q.mu.Unlock()
		return
	}
	q.sending = false
	more := len(q.pending) > 0 && !q.stopped
	q.mu.Unlock()

	if more {
		go q.sendCycle()
	}
}

func (q *Queue) retryFire() {
	q.mu.Lock()
	q.sending = false
	q.retryTimer = nil
	stopped := q.stopped
	q.mu.Unlock()
	if !stopped {
		q.sendCycle()
	}
}
