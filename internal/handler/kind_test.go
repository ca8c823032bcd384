package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Kind
	}{
		{"event handler", "src/handlers/events/UserCreated.go", KindEvent},
		{"websocket handler", "src/handlers/websockets/Chat.go", KindWebsocket},
		{"middleware handler", "src/handlers/middlewares/Auth.go", KindMiddleware},
		{"cron handler", "src/handlers/cron/nightly_report.go", KindCron},
		{"api handler", "src/handlers/api/CreateUser.go", KindAPI},
		{"unknown segment defaults to api", "src/handlers/custom/Thing.go", KindAPI},
		{"no handlers anchor defaults to api", "src/lib/util.go", KindAPI},
		{"absolute path", "/proj/src/handlers/events/Foo.go", KindEvent},
		{"handlers as last segment", "src/handlers", KindAPI},
		{"windows separators", `src\handlers\events\Foo.go`, KindEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindFromPath(tt.path))
		})
	}
}

func TestContextBuilders(t *testing.T) {
	ctx := NewContext("CreateUser", map[string]any{"name": "ada"}).
		WithMeta(MetaEventName, "UserCreated").
		WithQueryParam("limit", "10")

	assert.Equal(t, "CreateUser", ctx.HandlerName)
	assert.Equal(t, "UserCreated", ctx.Metadata[MetaEventName])
	assert.Equal(t, "10", ctx.QueryParams["limit"])
	assert.NotEmpty(t, ctx.Timestamp)
}

func TestResultConstructors(t *testing.T) {
	ok := Succeeded(map[string]any{"ok": true}, 12)
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)
	assert.Empty(t, ok.ErrorMessage())
	assert.NotNil(t, ok.Logs)
	assert.NotNil(t, ok.Triggers)
	assert.NotNil(t, ok.AutoTriggerPayloads)

	bad := Errored("boom", 3)
	assert.False(t, bad.Success)
	assert.Nil(t, bad.Data)
	assert.Equal(t, "boom", bad.ErrorMessage())
}
