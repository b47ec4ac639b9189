package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 256
	recordTimeout    = 5 * time.Second
)

// RecordRequest asks for one executed search to be written to history.
type RecordRequest struct {
	Query       string
	Filters     json.RawMessage
	ResultCount int
}

// HistorySink accepts record requests without blocking. Enqueue reports
// whether the request was accepted.
type HistorySink interface {
	Enqueue(req RecordRequest) bool
}

// Recorder writes search history in the background so a search response
// never waits on, or fails because of, a history write.
//
// Lifecycle: NewRecorder → Start → Enqueue... → Stop. Stop waits for the
// worker to write everything already queued.
type Recorder struct {
	tracker *Tracker
	logger  *slog.Logger
	queue   chan RecordRequest
	done    chan struct{}
	wg      sync.WaitGroup

	// mu makes "not stopped, so send" one step: Stop cannot close done
	// between an Enqueue's check and its send, so every accepted request
	// is in the queue before the worker starts its final drain.
	mu      sync.RWMutex
	stopped bool

	startOnce sync.Once
	stopOnce  sync.Once
}

var _ HistorySink = (*Recorder)(nil)

func NewRecorder(tracker *Tracker, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		tracker: tracker,
		logger:  logger,
		queue:   make(chan RecordRequest, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it more than once is a no-op.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		r.logger.Info("starting search history recorder", slog.Int("queueSize", cap(r.queue)))
		r.wg.Add(1)
		go r.run()
	})
}

// Stop signals the worker, lets it drain the queue, and waits for it.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.logger.Info("stopping search history recorder", slog.Int("pending", len(r.queue)))
		close(r.done)
		r.mu.Unlock()

		r.wg.Wait()
	})
}

// Enqueue hands a request to the worker. It never blocks: when the queue is
// full or the recorder is stopped the request is dropped and logged.
func (r *Recorder) Enqueue(req RecordRequest) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.logger.Warn("search history recorder stopped, dropping record", slog.String("query", req.Query))
		return false
	}

	select {
	case r.queue <- req:
		return true
	default:
		r.logger.Warn("search history queue full, dropping record", slog.String("query", req.Query))
		return false
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case req := <-r.queue:
			r.record(req)
		case <-r.done:
			for {
				select {
				case req := <-r.queue:
					r.record(req)
				default:
					return
				}
			}
		}
	}
}

// record writes one request. The request context is long gone by now, so
// each write gets its own deadline. Failures are logged, never returned.
func (r *Recorder) record(req RecordRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := r.tracker.Record(ctx, req.Query, req.Filters, req.ResultCount); err != nil {
		r.logger.Error("failed to record search",
			slog.String("query", req.Query),
			slog.String("error", err.Error()),
		)
	}
}
