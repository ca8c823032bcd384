package loader

import (
	"io"
	"sync"

	"github.com/traefik/yaegi/interp"
)

// Strategy loads one artifact into a Module. Strategies are tried in
// order; each failure is kept for the aggregate error.
type Strategy interface {
	Name() string
	Load(path string) (Module, error)
}

// Options configures a Loader.
type Options struct {
	// Diagnostics receives everything interpreted code writes to its
	// stdout or stderr. It must never be the frame stream.
	Diagnostics io.Writer

	// ExtraSymbols are host bindings exposed to interpreted modules in
	// addition to each strategy's own surface (the worker injects its
	// state package here).
	ExtraSymbols interp.Exports

	// Strategies overrides the default ordered list. Nil means
	// restricted, stdlib, plugin.
	Strategies []Strategy
}

// Loader resolves and caches modules for one worker process.
type Loader struct {
	strategies []Strategy

	mu    sync.Mutex
	cache map[string]Module
}

// New creates a loader with the default strategy order unless
// overridden.
func New(opts Options) *Loader {
	diag := opts.Diagnostics
	if diag == nil {
		diag = io.Discard
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = []Strategy{
			newRestrictedStrategy(diag, opts.ExtraSymbols),
			newStdlibStrategy(diag, opts.ExtraSymbols),
			pluginStrategy{},
		}
	}
	return &Loader{
		strategies: strategies,
		cache:      map[string]Module{},
	}
}

// Load returns the module for an artifact path, loading it on first
// use. Cached module identity is stable for the process lifetime, so
// module-level state survives across invocations.
func (l *Loader) Load(artifactPath string) (Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mod, ok := l.cache[artifactPath]; ok {
		return mod, nil
	}

	var attempts []Attempt
	for _, s := range l.strategies {
		mod, err := s.Load(artifactPath)
		if err != nil {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}
		if unusable(mod) {
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: errNoExports})
			continue
		}
		l.cache[artifactPath] = mod
		return mod, nil
	}

	return nil, &LoadFailureError{ArtifactPath: artifactPath, Attempts: attempts}
}

// unusable reports a module with no exports and no module-level
// callable. Nothing the resolver could select.
func unusable(mod Module) bool {
	if len(mod.Names()) > 0 {
		return false
	}
	_, callable := mod.Callable()
	return !callable
}
