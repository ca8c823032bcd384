package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"reflect"
	"strings"
)

// pluginStrategy loads a natively compiled shared object built next to
// the staged artifact (same path, .so extension). The plugin declares
// its export table through a package-level manifest:
//
//	var Exports = map[string]any{
//		"handle_create_user": handleCreateUser,
//	}
//
// The manifest exists because the Go linker only surfaces exported
// identifiers, while handler naming conventions are snake_case.
type pluginStrategy struct{}

func (pluginStrategy) Name() string { return "plugin" }

func (pluginStrategy) Load(path string) (Module, error) {
	soPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".so"
	if _, err := os.Stat(soPath); err != nil {
		return nil, fmt.Errorf("no shared object at %s", soPath)
	}

	p, err := plugin.Open(soPath)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", soPath, err)
	}

	sym, err := p.Lookup("Exports")
	if err != nil {
		return nil, fmt.Errorf("plugin %s has no Exports manifest: %w", soPath, err)
	}
	manifest, ok := sym.(*map[string]any)
	if !ok {
		return nil, fmt.Errorf("plugin %s: Exports is %T, want map[string]any", soPath, sym)
	}

	exports := make(map[string]reflect.Value, len(*manifest))
	for name, value := range *manifest {
		exports[name] = reflect.ValueOf(value)
	}
	return &mapModule{exports: exports}, nil
}

// mapModule is a Module backed by a plain map. Used by the plugin
// strategy and by tests.
type mapModule struct {
	exports  map[string]reflect.Value
	callable reflect.Value
}

func (m *mapModule) Lookup(name string) (reflect.Value, bool) {
	v, ok := m.exports[name]
	return v, ok
}

func (m *mapModule) Names() []string {
	names := make([]string, 0, len(m.exports))
	for n := range m.exports {
		names = append(names, n)
	}
	return names
}

func (m *mapModule) Callable() (reflect.Value, bool) {
	return m.callable, m.callable.IsValid()
}
