package resolve

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-run/gantry/internal/handler"
)

type fakeModule struct {
	exports  map[string]reflect.Value
	callable reflect.Value
}

func (m *fakeModule) Lookup(name string) (reflect.Value, bool) {
	v, ok := m.exports[name]
	return v, ok
}

func (m *fakeModule) Names() []string {
	names := make([]string, 0, len(m.exports))
	for n := range m.exports {
		names = append(names, n)
	}
	return names
}

func (m *fakeModule) Callable() (reflect.Value, bool) {
	return m.callable, m.callable.IsValid()
}

func fn(marker string) reflect.Value {
	return reflect.ValueOf(func() string { return marker })
}

func mod(names ...string) *fakeModule {
	m := &fakeModule{exports: map[string]reflect.Value{}}
	for _, n := range names {
		m.exports[n] = fn(n)
	}
	return m
}

func selected(t *testing.T, res *Resolution) string {
	t.Helper()
	out := res.Fn.Call(nil)
	return out[0].String()
}

func TestHandlerEventPolicy(t *testing.T) {
	t.Run("prefers handle_ prefix", func(t *testing.T) {
		m := mod("handle_UserCreated", "UserCreated")
		res, err := Handler(m, "UserCreated", handler.KindEvent)
		require.NoError(t, err)
		assert.Equal(t, "handle_UserCreated", res.Name)
	})

	t.Run("falls back to bare name", func(t *testing.T) {
		m := mod("UserCreated")
		res, err := Handler(m, "UserCreated", handler.KindEvent)
		require.NoError(t, err)
		assert.Equal(t, "UserCreated", res.Name)
	})

	t.Run("module-as-function not used for events", func(t *testing.T) {
		m := mod()
		m.callable = fn("whole module")
		_, err := Handler(m, "UserCreated", handler.KindEvent)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestHandlerMiddlewarePolicy(t *testing.T) {
	m := mod("auth_check_middleware")
	res, err := Handler(m, "AuthCheck", handler.KindMiddleware)
	require.NoError(t, err)
	assert.Equal(t, "auth_check_middleware", res.Name)
}

func TestHandlerAPIPolicy(t *testing.T) {
	t.Run("handle_snake first", func(t *testing.T) {
		m := mod("handle_create_user", "handleCreateUser", "handleAnything")
		res, err := Handler(m, "CreateUser", handler.KindAPI)
		require.NoError(t, err)
		assert.Equal(t, "handle_create_user", res.Name)
	})

	t.Run("handleCamel second", func(t *testing.T) {
		m := mod("handleCreateUser", "handleOther")
		res, err := Handler(m, "CreateUser", handler.KindAPI)
		require.NoError(t, err)
		assert.Equal(t, "handleCreateUser", res.Name)
	})

	t.Run("first handle-prefixed export third", func(t *testing.T) {
		m := mod("handleZeta", "handleAlpha", "misc")
		res, err := Handler(m, "CreateUser", handler.KindAPI)
		require.NoError(t, err)
		// Sorted order makes the scan deterministic.
		assert.Equal(t, "handleAlpha", res.Name)
	})

	t.Run("any callable fourth", func(t *testing.T) {
		m := mod("zebra", "apple")
		res, err := Handler(m, "CreateUser", handler.KindAPI)
		require.NoError(t, err)
		assert.Equal(t, "apple", res.Name)
	})

	t.Run("module itself last", func(t *testing.T) {
		m := mod()
		m.callable = fn("whole module")
		res, err := Handler(m, "CreateUser", handler.KindAPI)
		require.NoError(t, err)
		assert.Equal(t, "whole module", selected(t, res))
	})
}

func TestHandlerNonCallableExportsSkipped(t *testing.T) {
	m := mod()
	m.exports["handle_create_user"] = reflect.ValueOf("a string, not a function")
	m.exports["handleCreateUser"] = fn("the real one")

	res, err := Handler(m, "CreateUser", handler.KindAPI)
	require.NoError(t, err)
	assert.Equal(t, "handleCreateUser", res.Name)
}

func TestHandlerNotFoundListsAttempts(t *testing.T) {
	m := mod()
	m.exports["config"] = reflect.ValueOf(42)

	_, err := Handler(m, "CreateUser", handler.KindAPI)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "CreateUser", nf.HandlerName)
	assert.Contains(t, nf.Attempted, "handle_create_user")
	assert.Contains(t, nf.Attempted, "handleCreateUser")
	assert.Contains(t, nf.Attempted, "<module as function>")
	assert.Contains(t, nf.Error(), "handle_create_user")
	assert.Contains(t, nf.Error(), "config")
}

func TestHandlerDeterministic(t *testing.T) {
	m := mod("handleB", "handleA", "handleC")
	first, err := Handler(m, "Whatever", handler.KindAPI)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Handler(m, "Whatever", handler.KindAPI)
		require.NoError(t, err)
		assert.Equal(t, first.Name, again.Name)
	}
}
