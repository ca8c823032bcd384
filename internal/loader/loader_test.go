package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "handler.go")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestLoadRestrictedStrategy(t *testing.T) {
	path := writeArtifact(t, `package main

func handle_create_user(req map[string]any) map[string]any {
	return map[string]any{"ok": true, "name": req["name"]}
}
`)
	l := New(Options{})
	mod, err := l.Load(path)
	require.NoError(t, err)

	fn, ok := mod.Lookup("handle_create_user")
	require.True(t, ok)
	require.Equal(t, reflect.Func, fn.Kind())

	out := fn.Call([]reflect.Value{reflect.ValueOf(map[string]any{"name": "ada"})})
	require.Len(t, out, 1)
	result := out[0].Interface().(map[string]any)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, "ada", result["name"])

	assert.Contains(t, mod.Names(), "handle_create_user")
}

func TestLoadFallsBackToStdlibStrategy(t *testing.T) {
	// net/http is outside the restricted surface, so the restricted
	// strategy fails and the stdlib strategy must pick this up.
	path := writeArtifact(t, `package main

import "net/http"

func handle_status() string {
	return http.MethodGet
}
`)
	l := New(Options{})
	mod, err := l.Load(path)
	require.NoError(t, err)

	fn, ok := mod.Lookup("handle_status")
	require.True(t, ok)
	out := fn.Call(nil)
	assert.Equal(t, "GET", out[0].String())
}

func TestLoadAggregatesAllStrategyFailures(t *testing.T) {
	path := writeArtifact(t, `package main

import "github.com/nonexistent/dependency"

func handle_broken() { dependency.Call() }
`)
	l := New(Options{})
	_, err := l.Load(path)

	var lf *LoadFailureError
	require.ErrorAs(t, err, &lf)
	require.Len(t, lf.Attempts, 3)
	assert.Equal(t, "restricted", lf.Attempts[0].Strategy)
	assert.Equal(t, "stdlib", lf.Attempts[1].Strategy)
	assert.Equal(t, "plugin", lf.Attempts[2].Strategy)
	for _, a := range lf.Attempts {
		assert.NotNil(t, a.Err)
		assert.Contains(t, lf.Error(), a.Strategy)
	}
}

func TestLoadZeroExportsIsLoadFailure(t *testing.T) {
	path := writeArtifact(t, "package main\n")
	l := New(Options{})
	_, err := l.Load(path)

	var lf *LoadFailureError
	require.ErrorAs(t, err, &lf)
	assert.Contains(t, lf.Error(), "no usable exports")
}

func TestLoadMalformedSource(t *testing.T) {
	path := writeArtifact(t, "package main\n\nfunc broken( {\n")
	l := New(Options{})
	_, err := l.Load(path)

	var lf *LoadFailureError
	require.ErrorAs(t, err, &lf)
}

func TestLoadCachesModuleIdentity(t *testing.T) {
	path := writeArtifact(t, `package main

var calls = 0

func handle_count() int {
	calls++
	return calls
}
`)
	l := New(Options{})

	call := func() int {
		mod, err := l.Load(path)
		require.NoError(t, err)
		fn, ok := mod.Lookup("handle_count")
		require.True(t, ok)
		return int(fn.Call(nil)[0].Int())
	}

	// Module-level state persists across loads within one process:
	// the cache hands back the same evaluated module.
	assert.Equal(t, 1, call())
	assert.Equal(t, 2, call())
}

func TestLoadDiagnosticsRedirected(t *testing.T) {
	path := writeArtifact(t, `package main

import "fmt"

func handle_noisy() string {
	fmt.Println("handler chatter")
	return "done"
}
`)
	var diag bytes.Buffer
	l := New(Options{Diagnostics: &diag})
	mod, err := l.Load(path)
	require.NoError(t, err)

	fn, _ := mod.Lookup("handle_noisy")
	fn.Call(nil)

	// Prints from interpreted code land on the diagnostic stream, not
	// the process stdout where they would corrupt frames.
	assert.Contains(t, diag.String(), "handler chatter")
}

func TestDeclaredNames(t *testing.T) {
	path := writeArtifact(t, `package main

import "fmt"

const limit = 5

var prefix = "x"

func init() {}

func handle_a() {}

func helper() { fmt.Println(prefix) }
`)
	names, err := declaredNames(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"limit", "prefix", "handle_a", "helper"}, names)
}
