package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/protocol"
)

// TestHelperWorker is not a test: re-executed test binaries run it as
// a scripted worker process. The mode env var selects how it
// misbehaves.
func TestHelperWorker(t *testing.T) {
	if os.Getenv("GANTRY_WORKER_HELPER") != "1" {
		return
	}
	mode := os.Getenv("GANTRY_WORKER_MODE")

	if mode == "mute" {
		time.Sleep(time.Minute)
		os.Exit(1)
	}
	if mode == "garbage" {
		fmt.Println("this is not a frame")
		time.Sleep(time.Minute)
		os.Exit(1)
	}

	out := json.NewEncoder(os.Stdout)
	_ = out.Encode(protocol.Ready{Type: protocol.ReadyType})

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxFrameSize)
	for scanner.Scan() {
		req, err := protocol.ParseRequest(scanner.Bytes())
		if err != nil {
			_ = out.Encode(protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error()))
			continue
		}
		switch req.Method {
		case protocol.MethodExecute:
			if mode == "crash" {
				os.Exit(3)
			}
			params, err := req.ExecuteParams()
			if err != nil {
				_ = out.Encode(protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, err.Error()))
				continue
			}
			result := handler.Succeeded(map[string]any{"echo": params.HandlerPath}, 1)
			result.Logs = append(result.Logs, handler.LogRecord{
				Level:   handler.LevelInfo,
				Handler: params.Context.HandlerName,
				Message: "helper handled " + params.Context.HandlerName,
			})
			_ = out.Encode(protocol.NewResultResponse(req.ID, result))
		case protocol.MethodPing:
			_ = out.Encode(protocol.NewResultResponse(req.ID, protocol.PingResult{Status: "ok"}))
		case protocol.MethodShutdown:
			os.Exit(0)
		default:
			_ = out.Encode(protocol.NewErrorResponse(req.ID, protocol.CodeMethodNotFound, req.Method))
		}
	}
	os.Exit(0)
}

func helperCommand(mode string) Command {
	return Command{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperWorker"},
		Env: append(os.Environ(),
			"GANTRY_WORKER_HELPER=1",
			"GANTRY_WORKER_MODE="+mode,
		),
	}
}

func quietLog() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestStartWorkerReadyHandshake(t *testing.T) {
	w, err := StartWorker(context.Background(), helperCommand("ok"), time.Second*5, quietLog())
	require.NoError(t, err)
	defer w.Kill()

	assert.True(t, w.Alive())
	require.NoError(t, w.Ping(context.Background(), time.Second*5))
}

func TestStartWorkerReadyTimeout(t *testing.T) {
	_, err := StartWorker(context.Background(), helperCommand("mute"), 200*time.Millisecond, quietLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestStartWorkerRejectsChatterBeforeReady(t *testing.T) {
	_, err := StartWorker(context.Background(), helperCommand("garbage"), time.Second*5, quietLog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before ready")
}

func TestWorkerExecuteRoundTrip(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	w, err := StartWorker(context.Background(), helperCommand("ok"), time.Second*5, logrus.NewEntry(logger))
	require.NoError(t, err)
	defer w.Kill()

	ictx := handler.NewContext("CreateUser", map[string]any{"name": "ada"})
	result, err := w.Execute(context.Background(), "src/handlers/api/CreateUser.go", ictx, time.Second*5)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"echo": "src/handlers/api/CreateUser.go"}, result.Data)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))

	// Captured handler logs are re-emitted through the host logger.
	var messages []string
	for _, e := range hook.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "helper handled CreateUser")
}

func TestWorkerShutdown(t *testing.T) {
	w, err := StartWorker(context.Background(), helperCommand("ok"), time.Second*5, quietLog())
	require.NoError(t, err)

	w.Shutdown(time.Second * 5)
	assert.False(t, w.Alive())
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureRecorder) Record(handlerPath string, ictx *handler.InvocationContext, result *handler.ExecutionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, handlerPath)
	return nil
}

func TestPoolExecuteAndRecord(t *testing.T) {
	rec := &captureRecorder{}
	p, err := New(context.Background(), Options{
		Command:  helperCommand("ok"),
		Size:     2,
		Recorder: rec,
		Log:      quietLog(),
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 2, p.Size())

	ictx := handler.NewContext("GetUser", map[string]any{"id": "u-1"})
	result, err := p.Execute(context.Background(), "src/handlers/api/GetUser.go", ictx)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "src/handlers/api/GetUser.go", rec.entries[0])
}

func TestPoolSerializesOverOneWorker(t *testing.T) {
	p, err := New(context.Background(), Options{
		Command: helperCommand("ok"),
		Size:    1,
		Log:     quietLog(),
	})
	require.NoError(t, err)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ictx := handler.NewContext("GetUser", nil)
			_, errs[i] = p.Execute(context.Background(), "src/handlers/api/GetUser.go", ictx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "invocation %d", i)
	}
}

func TestPoolReplacesDeadWorker(t *testing.T) {
	// First spawn crashes on execute; every later spawn behaves.
	var spawns atomicSpawnCounter
	p, err := New(context.Background(), Options{
		Size: 1,
		Log:  quietLog(),
		Spawn: func(ctx context.Context) (*Worker, error) {
			mode := "ok"
			if spawns.next() == 1 {
				mode = "crash"
			}
			return StartWorker(ctx, helperCommand(mode), time.Second*5, quietLog())
		},
	})
	require.NoError(t, err)
	defer p.Close()

	ictx := handler.NewContext("Flaky", nil)
	_, err = p.Execute(context.Background(), "src/handlers/api/Flaky.go", ictx)
	require.Error(t, err, "a worker death surfaces as a transport error")

	// The pool replaced the dead worker; the next invocation succeeds.
	assert.Equal(t, 1, p.Size())
	result, err := p.Execute(context.Background(), "src/handlers/api/Flaky.go", ictx)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestPoolClosedCheckout(t *testing.T) {
	p, err := New(context.Background(), Options{
		Command: helperCommand("ok"),
		Size:    1,
		Log:     quietLog(),
	})
	require.NoError(t, err)
	p.Close()

	_, err = p.Execute(context.Background(), "src/handlers/api/GetUser.go", handler.NewContext("GetUser", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestPoolCheckoutHonorsContext(t *testing.T) {
	p, err := New(context.Background(), Options{
		Command: helperCommand("ok"),
		Size:    1,
		Log:     quietLog(),
	})
	require.NoError(t, err)
	defer p.Close()

	// Drain the only worker.
	w, err := p.checkout(context.Background())
	require.NoError(t, err)
	defer p.checkin(w)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = p.checkout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type atomicSpawnCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicSpawnCounter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}
