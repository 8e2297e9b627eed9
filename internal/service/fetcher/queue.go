package fetcher

import (
	"context"
	"sync"

	"github.com/quarryos/pkgfetch/internal/domain"
	"go.uber.org/zap"
)

// RunFunc performs the transfer for one fetch unit.
type RunFunc func(ctx context.Context, id domain.ContentID, fctx domain.FetchContext) error

// FetchResult is a handle on the eventual result of a queued fetch. All
// callers whose requests merged into the same unit share one result value.
type FetchResult struct {
	unit *workUnit
}

// Wait blocks until the fetch resolves or ctx is done. Abandoning a wait
// does not stop the transfer; it continues under the queue's own lifecycle.
func (r *FetchResult) Wait(ctx context.Context) error {
	select {
	case <-r.unit.done:
		return r.unit.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type workUnit struct {
	id      domain.ContentID
	fctx    domain.FetchContext
	started bool
	done    chan struct{}
	err     error
}

// queueEntry tracks the fetch units for one content id. units[0] is the
// active or next-to-run unit; later units run strictly after it, one at a
// time. An entry exists only while at least one unit is unresolved.
type queueEntry struct {
	units []*workUnit
}

// Queue is a deduplicating, bounded-concurrency fetch queue keyed by
// content id. It guarantees at most one active transfer per id,
// process-wide: a second submission for an id either merges into the
// pending unit or is sequenced after it.
type Queue struct {
	run            RunFunc
	maxConcurrency int
	logger         *zap.Logger

	mu       sync.Mutex
	entries  map[domain.ContentID]*queueEntry
	runnable []*workUnit
	wake     chan struct{}
	wg       sync.WaitGroup
}

// NewQueue creates a queue that executes units with run, with at most
// maxConcurrency transfers in flight.
func NewQueue(run RunFunc, maxConcurrency int, logger *zap.Logger) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Queue{
		run:            run,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		entries:        make(map[domain.ContentID]*queueEntry),
		wake:           make(chan struct{}, 1),
	}
}

// Start launches the worker pool. Workers stop when ctx is done; Start
// returns once all of them have exited.
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("fetch queue started", zap.Int("workers", q.maxConcurrency))
	for i := 0; i < q.maxConcurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.wg.Wait()
	q.logger.Info("fetch queue stopped")
}

// Push submits a fetch for id. If a fetch for the same id is already
// queued and has not started, the contexts are merged when possible and
// the returned result is shared with the earlier caller. Otherwise the new
// request is sequenced to run after the pending one completes; two
// transfers for the same id never run concurrently.
func (q *Queue) Push(id domain.ContentID, fctx domain.FetchContext) *FetchResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		u := &workUnit{id: id, fctx: fctx, done: make(chan struct{})}
		q.entries[id] = &queueEntry{units: []*workUnit{u}}
		q.runnable = append(q.runnable, u)
		q.signalLocked()
		return &FetchResult{unit: u}
	}

	// Merging into an in-flight unit would retarget live download state,
	// so only the last unit is a merge candidate, and only before it runs.
	last := e.units[len(e.units)-1]
	if !last.started && last.fctx.TryMerge(fctx) {
		return &FetchResult{unit: last}
	}

	u := &workUnit{id: id, fctx: fctx, done: make(chan struct{})}
	e.units = append(e.units, u)
	return &FetchResult{unit: u}
}

// FetchRequest pairs a content id with its fetch context for PushAll.
type FetchRequest struct {
	ID      domain.ContentID
	Context domain.FetchContext
}

// PushAll submits a batch of fetches and returns their results in
// submission order. Callers typically await them as an unordered set and
// treat the first failure as terminal for the batch.
func (q *Queue) PushAll(reqs []FetchRequest) []*FetchResult {
	results := make([]*FetchResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, q.Push(req.ID, req.Context))
	}
	return results
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		u := q.next(ctx)
		if u == nil {
			return
		}
		err := q.run(ctx, u.id, u.fctx)
		if err != nil {
			q.logger.Debug("fetch unit failed",
				zap.String("content_id", u.id.String()),
				zap.Error(err))
		}
		q.complete(u, err)
	}
}

// next pops the next runnable unit, blocking until one is available or ctx
// is done.
func (q *Queue) next(ctx context.Context) *workUnit {
	for {
		q.mu.Lock()
		if len(q.runnable) > 0 {
			u := q.runnable[0]
			q.runnable = q.runnable[1:]
			u.started = true
			if len(q.runnable) > 0 {
				q.signalLocked()
			}
			q.mu.Unlock()
			return u
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

// complete resolves a unit, wakes its awaiters, and schedules the next
// serialized unit for the same id, if any.
func (q *Queue) complete(u *workUnit, err error) {
	q.mu.Lock()
	e := q.entries[u.id]
	e.units = e.units[1:]
	if len(e.units) > 0 {
		q.runnable = append(q.runnable, e.units[0])
		q.signalLocked()
	} else {
		delete(q.entries, u.id)
	}
	q.mu.Unlock()

	u.err = err
	close(u.done)
}

// signalLocked nudges one idle worker. Callers hold q.mu; the channel has
// capacity 1 so redundant signals collapse.
func (q *Queue) signalLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
