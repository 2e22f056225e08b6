package history

import (
	"context"
	"sync"

	logx "thermopool/pkg/logx"
)

// Async decouples the pool's coordinator from journal I/O: Record is
// non-blocking (full buffers drop), a background goroutine does the writes.
type Async struct {
	store Store
	log   logx.Logger

	ch     chan Record
	wg     sync.WaitGroup
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewAsync wraps a store with a buffered writer goroutine.
func NewAsync(store Store, buffer int, log logx.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		store:  store,
		log:    log,
		ch:     make(chan Record, buffer),
		cancel: cancel,
	}
	a.wg.Add(1)
	go a.writer(ctx)
	return a
}

// Record enqueues without blocking; if the writer is behind, the record is
// dropped.
func (a *Async) Record(r Record) {
	select {
	case a.ch <- r:
	default:
	}
}

func (a *Async) writer(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case r := <-a.ch:
					a.append(r)
				default:
					return
				}
			}
		case r := <-a.ch:
			a.append(r)
		}
	}
}

func (a *Async) append(r Record) {
	if err := a.store.Append(context.Background(), r); err != nil && !a.log.IsZero() {
		a.log.Debug("history append failed", logx.String("task", r.TaskID), logx.Err(err))
	}
}

// Close flushes buffered records and stops the writer. The underlying store
// is not closed.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		a.wg.Wait()
	})
}
