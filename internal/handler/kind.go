package handler

import (
	"path/filepath"
	"strings"
)

// Kind classifies a handler by the directory it lives in under the
// handlers root. The kind drives both function-name resolution and the
// call convention.
type Kind string

const (
	KindAPI        Kind = "api"
	KindEvent      Kind = "event"
	KindWebsocket  Kind = "websocket"
	KindMiddleware Kind = "middleware"
	KindCron       Kind = "cron"
)

// KindFromPath infers the handler kind from the first path segment
// following a "handlers" anchor. Paths without the anchor, or with an
// unrecognized segment, default to KindAPI.
//
//	src/handlers/events/UserCreated.go  -> KindEvent
//	src/handlers/api/CreateUser.go      -> KindAPI
//	src/handlers/custom/Thing.go        -> KindAPI
func KindFromPath(path string) Kind {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		if seg != "handlers" || i+1 >= len(segments) {
			continue
		}
		switch segments[i+1] {
		case "events":
			return KindEvent
		case "websockets":
			return KindWebsocket
		case "middlewares":
			return KindMiddleware
		case "cron":
			return KindCron
		default:
			return KindAPI
		}
	}
	return KindAPI
}
