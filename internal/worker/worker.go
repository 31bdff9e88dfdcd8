package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/logging"
	"github.com/AnyUserName/imgcrush/internal/pipeline"
)

// job is a queued request, or a rejection that keeps its place in line.
type job struct {
	req    Request
	reject error
}

// PostFunc delivers a response to the host. It is called from one goroutine
// at a time.
type PostFunc func(Response)

// Worker owns one orchestrator and feeds it from a FIFO inbox.
type Worker struct {
	orch  *pipeline.Orchestrator
	post  PostFunc
	log   *zap.Logger
	inbox chan job

	postMu sync.Mutex
	mu     sync.RWMutex
	closed bool

	ready    chan struct{}
	stopping chan struct{}
	done     chan struct{}
}

// New creates a stopped worker. queue is the inbox capacity; Submit blocks
// when it is full.
func New(orch *pipeline.Orchestrator, post PostFunc, log *zap.Logger, queue int) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if queue < 1 {
		queue = 1
	}
	return &Worker{
		orch:     orch,
		post:     post,
		log:      log,
		inbox:    make(chan job, queue),
		ready:    make(chan struct{}),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start initializes the orchestrator in the background, posts
// "initialized" and then serves the inbox until Close or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Ready is closed once the "initialized" response has been posted.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Done is closed when the loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	if err := w.orch.Init(ctx); err != nil {
		w.log.Error("init failed", zap.Error(err))
		w.send(Response{Status: StatusError, Message: err.Error(), Kind: pipeline.KindOf(err)})
		return
	}
	w.send(Response{Status: StatusInitialized})
	close(w.ready)
	w.log.Debug("worker ready")

	for {
		select {
		case <-ctx.Done():
			w.drain(ctx.Err())
			return
		case j, ok := <-w.inbox:
			if !ok {
				return
			}
			if j.reject != nil {
				w.send(Response{ID: j.req.ID, Status: StatusError, Message: j.reject.Error(), Kind: KindInvalidRequest})
				continue
			}
			w.handle(ctx, j.req)
		}
	}
}

// drain answers everything still queued so no request goes unanswered.
func (w *Worker) drain(cause error) {
	close(w.stopping)
	w.Close()

	err := &pipeline.Error{Err: fmt.Errorf("%w: %w", pipeline.ErrCancelled, cause)}
	for j := range w.inbox {
		w.send(errorResponse(j.req.ID, err))
	}
}

// Submit queues a request. Requests that arrive before initialization or
// after Close are answered at once with an error. A request without file
// bytes is rejected in queue order and never reaches the orchestrator.
func (w *Worker) Submit(req Request) {
	if len(req.File) == 0 {
		w.enqueue(job{req: req, reject: errEmptyFile})
		return
	}
	w.enqueue(job{req: req})
}

// Reject answers a request that failed to parse, in queue order.
func (w *Worker) Reject(id string, err error) {
	w.enqueue(job{req: Request{ID: id}, reject: err})
}

func (w *Worker) enqueue(j job) {
	if j.req.ID == "" {
		j.req.ID = uuid.NewString()
	}
	if !w.orch.Ready() {
		w.send(Response{ID: j.req.ID, Status: StatusError, Message: NotReadyMessage, Kind: "not_ready"})
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.send(errorResponse(j.req.ID, &pipeline.Error{Err: pipeline.ErrCancelled}))
		return
	}
	select {
	case w.inbox <- j:
	case <-w.stopping:
		w.send(errorResponse(j.req.ID, &pipeline.Error{Err: pipeline.ErrCancelled}))
	}
}

// Close stops accepting requests. Queued requests are still processed.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.inbox)
}

func (w *Worker) handle(ctx context.Context, req Request) {
	log := logging.WithRequest(w.log, req.ID)
	log.Debug("request", zap.Int("bytes", len(req.File)), zap.Stringer("format", req.Config.OutputFormat))

	res, err := w.orch.Run(ctx, req.File, req.Config)
	if rerr := w.orch.Reset(); rerr != nil {
		log.Debug("reset", zap.Error(rerr))
	}
	if err != nil {
		log.Debug("request failed", zap.Error(err))
		w.send(errorResponse(req.ID, err))
		return
	}

	cfg := req.Config
	w.send(Response{
		ID:     req.ID,
		Status: StatusSuccess,
		Data:   res.Data,
		Config: &cfg,
		Width:  res.Width,
		Height: res.Height,
		Format: res.Format,
	})
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Status: StatusError, Message: err.Error(), Kind: pipeline.KindOf(err)}
}

func (w *Worker) send(r Response) {
	w.postMu.Lock()
	defer w.postMu.Unlock()
	w.post(r)
}
