package worker

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/loader"
	"github.com/gantry-run/gantry/internal/marshal"
	"github.com/gantry-run/gantry/internal/protocol"
	"github.com/gantry-run/gantry/internal/resolve"
)

// Runner executes one invocation end to end: artifact resolution,
// module load, handler resolution, argument construction, call. Every
// failure along the way is converted into a failed result; nothing
// escapes as a transport fault.
type Runner struct {
	projectRoot string
	loader      *loader.Loader
	registry    *marshal.Registry
	log         *logrus.Entry
}

// NewRunner creates a runner rooted at the project directory. The
// loader's diagnostics and extra symbols are the caller's business;
// the registry defaults to marshal.Default when nil.
func NewRunner(projectRoot string, ld *loader.Loader, registry *marshal.Registry, log *logrus.Entry) *Runner {
	if registry == nil {
		registry = marshal.Default
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{projectRoot: projectRoot, loader: ld, registry: registry, log: log}
}

// Execute runs one invocation and always returns a usable result. The
// elapsed time recorded here is the in-worker view; the host overwrites
// it with the full round-trip measurement.
func (r *Runner) Execute(params *protocol.ExecuteParams) *handler.ExecutionResult {
	start := time.Now()

	if params == nil || params.Context == nil {
		return handler.Errored("execute called without an invocation context", 0)
	}
	ctx := params.Context

	state := NewState(ctx.HandlerName)
	result := r.run(params.HandlerPath, ctx, state)
	state.attach(result)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	r.log.WithFields(logrus.Fields{
		"handler": ctx.HandlerName,
		"success": result.Success,
	}).Debug("invocation finished")
	return result
}

// run walks the Loading -> Resolving -> Invoking stages. The deferred
// recover catches handler panics (and anything the interpreter throws)
// so they surface as a failed result carrying the stack.
func (r *Runner) run(handlerPath string, ctx *handler.InvocationContext, state *State) (result *handler.ExecutionResult) {
	defer func() {
		if p := recover(); p != nil {
			result = failed(fmt.Errorf("handler panicked: %v", p))
		}
	}()

	// Loading
	artifact, err := loader.Artifact(r.projectRoot, handlerPath)
	if err != nil {
		return failed(err)
	}
	mod, err := r.loader.Load(artifact)
	if err != nil {
		return failed(err)
	}

	// Resolving
	kind := handler.KindFromPath(handlerPath)
	res, err := resolve.Handler(mod, ctx.HandlerName, kind)
	if err != nil {
		return failed(err)
	}

	// Invoking
	args, err := r.buildArgs(res.Fn, kind, ctx, state)
	if err != nil {
		return failed(err)
	}
	data, err := callHandler(res.Fn, args)
	if err != nil {
		return failed(err)
	}
	return handler.Succeeded(data, 0)
}

// failed renders any error as a result with message and stack. The
// stack makes handler-side failures debuggable from the host's trace
// store without shelling into the worker.
func failed(err error) *handler.ExecutionResult {
	return handler.Errored(err.Error()+"\n"+string(debug.Stack()), 0)
}

// buildArgs applies the call convention for the handler kind, driven
// purely by the resolved callable's parameter count. The count is
// inspected once per invocation.
func (r *Runner) buildArgs(fn reflect.Value, kind handler.Kind, ctx *handler.InvocationContext, state *State) ([]reflect.Value, error) {
	t := fn.Type()
	arity := t.NumIn()
	if t.IsVariadic() {
		arity--
	}

	if arity == 0 {
		return nil, nil
	}

	var positional []any
	switch kind {
	case handler.KindCron:
		// cron: (payload) or (payload, state)
		switch arity {
		case 1:
			positional = []any{ctx.Payload}
		case 2:
			positional = []any{ctx.Payload, state}
		default:
			return nil, arityError(kind, arity, "0, 1 (payload), or 2 (payload, state)")
		}

	case handler.KindEvent:
		event, err := r.registry.BuildEvent(ctx)
		if err != nil {
			return nil, err
		}
		switch arity {
		case 1:
			positional = []any{event.Value}
		case 2:
			positional = []any{event.Value, state}
		default:
			return nil, arityError(kind, arity, "1 (event) or 2 (event, state)")
		}

	case handler.KindWebsocket:
		conn := r.registry.BuildConnection(ctx)
		switch arity {
		case 1:
			positional = []any{conn.Value}
		case 2:
			positional = []any{conn.Value, state}
		case 3:
			// The message value only exists for three-parameter
			// handlers; without a message sub-object the raw payload
			// rides in that position.
			msg, ok := r.registry.BuildMessage(ctx)
			msgValue := ctx.Payload
			if ok {
				msgValue = msg.Value
			}
			positional = []any{msgValue, conn.Value, state}
		default:
			return nil, arityError(kind, arity, "1 (connection), 2 (connection, state), or 3 (message, connection, state)")
		}

	default: // api, middleware
		req := r.registry.BuildRequest(ctx)
		switch arity {
		case 1:
			positional = []any{req.Value}
		case 2:
			positional = []any{req.Value, state}
		default:
			return nil, arityError(kind, arity, "1 (request) or 2 (request, state)")
		}
	}

	args := make([]reflect.Value, len(positional))
	for i, v := range positional {
		av, err := argValue(v, t.In(i))
		if err != nil {
			return nil, fmt.Errorf("handler parameter %d: %w", i, err)
		}
		args[i] = av
	}
	return args, nil
}

func arityError(kind handler.Kind, arity int, accepted string) error {
	return fmt.Errorf("%s handlers accept %s parameters; resolved function takes %d", kind, accepted, arity)
}

// argValue coerces a constructed value to the declared parameter type.
func argValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot pass %T as %s", v, t)
}

// callHandler invokes the resolved function and interprets its
// returns: a trailing non-nil error fails the invocation, the first
// non-error value becomes the result data, and a bare call with no
// returns yields nil data.
func callHandler(fn reflect.Value, args []reflect.Value) (any, error) {
	out := fn.Call(args)

	errType := reflect.TypeOf((*error)(nil)).Elem()
	if n := len(out); n > 0 && out[n-1].Type().Implements(errType) {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
