package pool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/protocol"
)

// DefaultReadyTimeout bounds how long a freshly spawned worker may
// take to announce readiness before it is declared dead.
const DefaultReadyTimeout = 5 * time.Second

// Command describes how to start one worker process.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Worker is the host-side handle on one worker process. A worker
// serves at most one invocation at a time; the pool enforces that by
// checking workers out exclusively, and the internal mutex backstops
// direct callers.
type Worker struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	framer *protocol.Framer
	ids    *protocol.IDCounter
	log    *logrus.Entry

	mu   sync.Mutex
	dead atomic.Bool
}

// StartWorker spawns a worker process and blocks until it announces
// readiness or the timeout elapses. On timeout the process is killed
// and an error returned; a worker that never says ready is never
// handed an invocation.
func StartWorker(ctx context.Context, command Command, readyTimeout time.Duration, log *logrus.Entry) (*Worker, error) {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	id := uuid.NewString()[:8]
	log = log.WithField("worker", id)

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	w := &Worker{
		id:     id,
		cmd:    cmd,
		stdin:  stdin,
		framer: protocol.NewFramer(stdout, stdin),
		ids:    protocol.NewIDCounter(),
		log:    log,
	}
	go w.drainStderr(stderr)

	if err := w.awaitReady(ctx, readyTimeout); err != nil {
		w.Kill()
		return nil, err
	}
	log.WithField("pid", cmd.Process.Pid).Debug("worker ready")
	return w, nil
}

// ID is the worker's short identifier, used in log fields.
func (w *Worker) ID() string { return w.id }

// Alive reports whether the worker is still usable. It flips false
// permanently on the first transport fault.
func (w *Worker) Alive() bool { return !w.dead.Load() }

// Execute routes one invocation to the worker and waits for its
// correlated response. The returned result's execution time is the
// host-observed round trip, which supersedes the worker's in-process
// measurement. A transport error marks the worker dead; callers
// discard dead workers rather than retrying on them.
func (w *Worker) Execute(ctx context.Context, handlerPath string, ictx *handler.InvocationContext, timeout time.Duration) (*handler.ExecutionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead.Load() {
		return nil, fmt.Errorf("worker %s is dead", w.id)
	}

	id := w.ids.Next()
	req, err := protocol.NewExecuteRequest(id, handlerPath, ictx)
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}

	start := time.Now()
	if err := w.framer.WriteRequest(req); err != nil {
		w.fail(err)
		return nil, fmt.Errorf("send execute to worker %s: %w", w.id, err)
	}

	frame, err := w.awaitResponse(ctx, id, timeout)
	if err != nil {
		w.fail(err)
		return nil, err
	}
	if frame.Error != nil {
		// Transport faults from the worker (parse errors, bad params)
		// mean host and worker disagree about the wire; stop trusting
		// this process.
		w.fail(fmt.Errorf("rpc error %d: %s", frame.Error.Code, frame.Error.Message))
		return nil, fmt.Errorf("worker %s rejected request: %s", w.id, frame.Error.Message)
	}

	result, err := frame.ExecutionResult()
	if err != nil {
		w.fail(err)
		return nil, fmt.Errorf("worker %s response: %w", w.id, err)
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	w.reemitLogs(result)
	return result, nil
}

// Ping checks liveness with a ping round trip.
func (w *Worker) Ping(ctx context.Context, timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dead.Load() {
		return fmt.Errorf("worker %s is dead", w.id)
	}

	id := w.ids.Next()
	req := &protocol.Request{JSONRPC: protocol.Version, ID: &id, Method: protocol.MethodPing}
	if err := w.framer.WriteRequest(req); err != nil {
		w.fail(err)
		return fmt.Errorf("ping worker %s: %w", w.id, err)
	}
	if _, err := w.awaitResponse(ctx, id, timeout); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// Shutdown asks the worker to exit and waits for the process, killing
// it if it lingers past the timeout. Shutdown has no response frame.
func (w *Worker) Shutdown(timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dead.Load() {
		req := &protocol.Request{JSONRPC: protocol.Version, Method: protocol.MethodShutdown}
		if err := w.framer.WriteRequest(req); err != nil {
			w.log.WithError(err).Debug("shutdown write failed, killing")
			w.kill()
			return
		}
	}
	w.dead.Store(true)
	_ = w.stdin.Close()

	done := make(chan struct{})
	go func() {
		_ = w.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Debug("worker ignored shutdown, killing")
		w.kill()
		<-done
	}
}

// Kill terminates the worker process immediately.
func (w *Worker) Kill() {
	w.dead.Store(true)
	w.kill()
	_ = w.cmd.Wait()
}

func (w *Worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

func (w *Worker) fail(err error) {
	if w.dead.CompareAndSwap(false, true) {
		w.log.WithError(err).Warn("worker transport fault, marking dead")
		w.kill()
	}
}

// awaitReady consumes stdout lines until the ready notification shows
// up. Anything else before ready is a protocol violation.
func (w *Worker) awaitReady(ctx context.Context, timeout time.Duration) error {
	type readResult struct {
		frame *protocol.WorkerFrame
		err   error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := w.framer.ReadLine()
		if err != nil {
			ch <- readResult{err: err}
			return
		}
		frame, err := protocol.ParseWorkerFrame(line)
		ch <- readResult{frame: frame, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("worker %s failed before ready: %w", w.id, r.err)
		}
		if !r.frame.IsReady() {
			return fmt.Errorf("worker %s spoke before ready handshake", w.id)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker %s not ready after %s", w.id, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitResponse reads frames until one correlates with the given id.
// Frames with other ids should not exist (one in-flight request per
// worker) and are logged and skipped.
func (w *Worker) awaitResponse(ctx context.Context, id int64, timeout time.Duration) (*protocol.WorkerFrame, error) {
	type readResult struct {
		frame *protocol.WorkerFrame
		err   error
	}
	ch := make(chan readResult, 1)
	go func() {
		for {
			line, err := w.framer.ReadLine()
			if err != nil {
				ch <- readResult{err: err}
				return
			}
			frame, err := protocol.ParseWorkerFrame(line)
			if err != nil {
				ch <- readResult{err: err}
				return
			}
			if frame.ID == nil || *frame.ID != id {
				// A null-id error frame is the worker telling us it
				// could not even parse our line.
				if frame.Error != nil && frame.ID == nil {
					ch <- readResult{frame: frame}
					return
				}
				w.log.WithField("frame_id", frame.ID).Warn("discarding uncorrelated frame")
				continue
			}
			ch <- readResult{frame: frame}
			return
		}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("read from worker %s: %w", w.id, r.err)
		}
		return r.frame, nil
	case <-deadline:
		return nil, fmt.Errorf("worker %s timed out after %s", w.id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// reemitLogs surfaces the invocation's captured handler logs through
// the host logger so they land in the operator's stream as well as in
// the result.
func (w *Worker) reemitLogs(result *handler.ExecutionResult) {
	for _, rec := range result.Logs {
		entry := w.log.WithField("handler", rec.Handler)
		if len(rec.Fields) > 0 {
			entry = entry.WithFields(logrus.Fields(rec.Fields))
		}
		switch rec.Level {
		case handler.LevelError:
			entry.Error(rec.Message)
		case handler.LevelWarn:
			entry.Warn(rec.Message)
		case handler.LevelDebug, handler.LevelTrace:
			entry.Debug(rec.Message)
		default:
			entry.Info(rec.Message)
		}
	}
}

// drainStderr forwards the worker's stderr lines to the host logger.
// Stderr is diagnostics only; frames never travel on it.
func (w *Worker) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 16*1024), protocol.MaxFrameSize)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			w.log.Debug(line)
		}
	}
}
