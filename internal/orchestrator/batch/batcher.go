// Package batch buffers comparison outcomes and writes them to the ledger in batches.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/snapdiff/internal/ledger"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator/history"
	"github.com/GriffinCanCode/snapdiff/internal/trace"
)

// Batcher defaults
const (
	DefaultMaxSize    = 50
	DefaultFlushDelay = 2 * time.Second
	flushTimeout      = 10 * time.Second
)

// Sink persists a batch of records.
type Sink interface {
	InsertBatch(ctx context.Context, records []ledger.Record) (int, error)
}

// Batcher accumulates records and flushes them when the batch is full or
// after flushDelay of inactivity.
type Batcher struct {
	sink       Sink
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	items      []ledger.Record
	timer      *time.Timer
	stopped    bool
	wg         sync.WaitGroup
}

// NewBatcher creates an outcome batcher.
func NewBatcher(sink Sink, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]ledger.Record, 0, maxSize),
	}
}

// Record converts an outcome and queues it.
func (b *Batcher) Record(o *history.Outcome) {
	b.Add(ToRecord(o))
}

// Add queues a record for batched storage. Records added after Stop are dropped.
func (b *Batcher) Add(r ledger.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.items = append(b.items, r)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

// Pending returns the number of queued records.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = make([]ledger.Record, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		ctx, span := trace.StartSpan(ctx, "ledger_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		stored, err := b.sink.InsertBatch(ctx, items)
		if err != nil {
			span.RecordError(err)
			log.Warn("ledger batch insert failed", "error", err, "count", len(items))
		} else {
			log.Debug("ledger batch stored", "stored", stored, "submitted", len(items))
		}
	}()
}

// Flush forces immediate flush of pending records.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Stop flushes remaining records and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}

// ToRecord maps an outcome onto its ledger row.
func ToRecord(o *history.Outcome) ledger.Record {
	return ledger.Record{
		Name:           o.Name,
		Variant:        o.Variant,
		Status:         o.Status.String(),
		Reason:         o.Reason,
		DiffPixels:     o.DiffPixels,
		TotalPixels:    o.TotalPixels,
		DiffPercent:    o.DiffPercent,
		MaxDiffPercent: o.MaxDiffPercent,
		ActualPath:     o.ActualPath,
		DiffPath:       o.DiffPath,
		Error:          o.Error,
		TraceID:        o.TraceID,
		Duration:       o.Duration,
		At:             o.At,
	}
}
