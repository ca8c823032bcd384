package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"reflect"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// restrictedPackages is the curated symbol surface of the restricted
// strategy: console output, timers, process handle, path identity, and
// the serialization essentials. Everything else (sockets, exec, unsafe)
// stays out of reach of interpreted modules.
var restrictedPackages = []string{
	"fmt/fmt",
	"time/time",
	"os/os",
	"path/filepath/filepath",
	"encoding/json/json",
	"errors/errors",
	"strings/strings",
	"strconv/strconv",
	"math/math",
	"sort/sort",
}

type yaegiStrategy struct {
	name    string
	diag    io.Writer
	symbols func() interp.Exports
	extra   interp.Exports
}

func newRestrictedStrategy(diag io.Writer, extra interp.Exports) Strategy {
	return &yaegiStrategy{
		name: "restricted",
		diag: diag,
		symbols: func() interp.Exports {
			out := interp.Exports{}
			for _, key := range restrictedPackages {
				if syms, ok := stdlib.Symbols[key]; ok {
					out[key] = syms
				}
			}
			return out
		},
		extra: extra,
	}
}

func newStdlibStrategy(diag io.Writer, extra interp.Exports) Strategy {
	return &yaegiStrategy{
		name:    "stdlib",
		diag:    diag,
		symbols: func() interp.Exports { return stdlib.Symbols },
		extra:   extra,
	}
}

func (s *yaegiStrategy) Name() string { return s.name }

// Load evaluates the artifact in a fresh interpreter. The interpreter's
// stdout is rerouted to the diagnostic stream so handler prints cannot
// corrupt frame parsing on the worker's real stdout.
func (s *yaegiStrategy) Load(path string) (Module, error) {
	names, err := declaredNames(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	i := interp.New(interp.Options{Stdout: s.diag, Stderr: s.diag})
	if err := i.Use(s.symbols()); err != nil {
		return nil, fmt.Errorf("install %s symbols: %w", s.name, err)
	}
	if s.extra != nil {
		if err := i.Use(s.extra); err != nil {
			return nil, fmt.Errorf("install host bindings: %w", err)
		}
	}

	last, err := i.EvalPath(path)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}

	mod := &interpModule{interp: i, names: names}
	if last.IsValid() && last.Kind() == reflect.Func {
		mod.callable = last
	}
	return mod, nil
}

// interpModule exposes an evaluated file's package scope as an export
// table. Lookups go through Eval so convention names outside Go's
// exported-identifier rules (handle_create_user) still resolve.
type interpModule struct {
	interp *interp.Interpreter
	names  []string
	// Module-level callable: the file's final expression, when it is a
	// function value.
	callable reflect.Value

	mu sync.Mutex
}

func (m *interpModule) Lookup(name string) (reflect.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.interp.Eval(name)
	if err != nil || !v.IsValid() {
		return reflect.Value{}, false
	}
	return v, true
}

func (m *interpModule) Names() []string {
	return m.names
}

func (m *interpModule) Callable() (reflect.Value, bool) {
	return m.callable, m.callable.IsValid()
}

// declaredNames lists the artifact's top-level function and value
// names. The resolver's scan rules iterate these; init is never a
// handler.
func declaredNames(path string) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.Name != "init" {
				names = append(names, d.Name.Name)
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok {
					continue
				}
				for _, n := range vs.Names {
					if n.Name != "_" {
						names = append(names, n.Name)
					}
				}
			}
		}
	}
	return names, nil
}
