package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gantry-run/gantry/internal/handler"
)

// DefaultExecuteTimeout bounds a single invocation round trip.
const DefaultExecuteTimeout = 30 * time.Second

// Recorder receives finished invocations for persistence. The trace
// store implements it; tests substitute their own.
type Recorder interface {
	Record(handlerPath string, ictx *handler.InvocationContext, result *handler.ExecutionResult) error
}

// Options configure a pool.
type Options struct {
	// Command starts one worker process. Required unless Spawn is set.
	Command Command

	// Size is the number of workers kept alive. Defaults to 1.
	Size int

	// ReadyTimeout bounds worker startup. Zero means
	// DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// ExecuteTimeout bounds one invocation round trip. Zero means
	// DefaultExecuteTimeout.
	ExecuteTimeout time.Duration

	// Recorder, when set, receives every finished invocation.
	Recorder Recorder

	// Log is the host logger. Defaults to the standard logger.
	Log *logrus.Entry

	// Spawn overrides process startup; tests use it to hand the pool
	// scripted workers.
	Spawn func(ctx context.Context) (*Worker, error)
}

// Pool keeps a fixed set of workers and routes invocations to them
// one at a time. Checkout is FIFO over an idle list guarded by a
// mutex, with a buffered signal channel for context-aware waiting.
type Pool struct {
	opts  Options
	spawn func(ctx context.Context) (*Worker, error)
	log   *logrus.Entry

	mu     sync.Mutex
	idle   []*Worker
	live   int
	closed bool
	signal chan struct{}
}

// New creates a pool and starts its workers. Startup is all-or-
// nothing: if any worker fails to come up ready, the ones already
// started are shut down and the error returned.
func New(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.ExecuteTimeout <= 0 {
		opts.ExecuteTimeout = DefaultExecuteTimeout
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	p := &Pool{
		opts:   opts,
		spawn:  opts.Spawn,
		log:    log,
		idle:   make([]*Worker, 0, opts.Size),
		signal: make(chan struct{}, 1),
	}
	if p.spawn == nil {
		p.spawn = func(ctx context.Context) (*Worker, error) {
			return StartWorker(ctx, opts.Command, opts.ReadyTimeout, log)
		}
	}

	for i := 0; i < opts.Size; i++ {
		w, err := p.spawn(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("start worker %d of %d: %w", i+1, opts.Size, err)
		}
		p.mu.Lock()
		p.idle = append(p.idle, w)
		p.live++
		p.mu.Unlock()
	}
	log.WithField("size", opts.Size).Debug("worker pool ready")
	return p, nil
}

// Execute checks a worker out, runs the invocation, and returns the
// worker to the pool. A worker that dies mid-invocation is replaced
// before the error is returned, so pool capacity survives handler
// runtime crashes. Results are handed to the recorder regardless of
// handler success.
func (p *Pool) Execute(ctx context.Context, handlerPath string, ictx *handler.InvocationContext) (*handler.ExecutionResult, error) {
	w, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}

	result, err := w.Execute(ctx, handlerPath, ictx, p.opts.ExecuteTimeout)
	if err != nil {
		p.discard(w)
		return nil, err
	}
	p.checkin(w)

	if p.opts.Recorder != nil {
		if rerr := p.opts.Recorder.Record(handlerPath, ictx, result); rerr != nil {
			p.log.WithError(rerr).Warn("trace record failed")
		}
	}
	return result, nil
}

// checkout hands out the first idle worker, blocking until one is
// available or the context ends. Dead workers found in the idle list
// are replaced inline.
func (p *Pool) checkout(ctx context.Context) (*Worker, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("pool is closed")
		}
		if len(p.idle) > 0 {
			w := p.idle[0]
			p.idle[0] = nil
			p.idle = p.idle[1:]
			p.mu.Unlock()

			if w.Alive() {
				return w, nil
			}
			p.discard(w)
			continue
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.signal:
		}
	}
}

func (p *Pool) checkin(w *Worker) {
	if !w.Alive() {
		p.discard(w)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		w.Shutdown(time.Second)
		return
	}
	p.idle = append(p.idle, w)
	p.mu.Unlock()
	p.wake()
}

// discard drops a dead worker and spawns a replacement so the pool
// holds its size. Replacement failure is logged and retried on the
// next discard; the pool degrades rather than wedges.
func (p *Pool) discard(w *Worker) {
	w.Kill()
	p.mu.Lock()
	p.live--
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	p.log.WithField("worker", w.ID()).Info("replacing dead worker")
	nw, err := p.spawn(context.Background())
	if err != nil {
		p.log.WithError(err).Error("worker replacement failed")
		p.wake()
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		nw.Shutdown(time.Second)
		return
	}
	p.idle = append(p.idle, nw)
	p.live++
	p.mu.Unlock()
	p.wake()
}

// wake signals checkout waiters. The buffer of one coalesces signals;
// waiters re-check the idle list anyway. The mutex guards against
// signaling a channel Close has already closed.
func (p *Pool) wake() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Size reports how many workers are currently live.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Close shuts every idle worker down and refuses further checkouts.
// Workers checked out at close time are shut down as they come back.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.signal)
	for _, w := range idle {
		w.Shutdown(time.Second)
	}
}
