package marshal

import "sync"

// Constructor builds a typed value from raw fields. Generated code
// supplies one per schema-declared name; an error means the fields do
// not fit the generated type and the caller falls back to the raw
// value.
type Constructor func(fields map[string]any) (any, error)

// registryKind namespaces constructor names so an event and a model
// sharing a name never collide.
type registryKind string

const (
	kindRequest    registryKind = "request"
	kindEvent      registryKind = "event"
	kindModel      registryKind = "model"
	kindConnection registryKind = "connection"
	kindMessage    registryKind = "message"
)

type registryKey struct {
	kind registryKind
	name string
}

// Registry holds the typed constructors contributed by generated code.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu           sync.RWMutex
	constructors map[registryKey]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[registryKey]Constructor{}}
}

// Default is the process-wide registry generated packages register
// into from init functions.
var Default = NewRegistry()

func (r *Registry) register(kind registryKind, name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[registryKey{kind, name}] = c
}

func (r *Registry) lookup(kind registryKind, name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.constructors[registryKey{kind, name}]
	return c, ok
}

// RegisterRequest binds the <HandlerName>Request constructor for an
// api-style handler.
func (r *Registry) RegisterRequest(handlerName string, c Constructor) {
	r.register(kindRequest, handlerName, c)
}

// RegisterEvent binds the event wrapper constructor for a
// schema-declared event name.
func (r *Registry) RegisterEvent(eventName string, c Constructor) {
	r.register(kindEvent, eventName, c)
}

// RegisterModel binds a generated model type's constructor, used to
// instantiate non-primitive event payloads.
func (r *Registry) RegisterModel(typeName string, c Constructor) {
	r.register(kindModel, typeName, c)
}

// RegisterConnection binds the <Endpoint>Connection constructor for a
// websocket endpoint.
func (r *Registry) RegisterConnection(endpointName string, c Constructor) {
	r.register(kindConnection, endpointName, c)
}

// RegisterMessage binds the <Endpoint>Message constructor for a
// websocket endpoint.
func (r *Registry) RegisterMessage(endpointName string, c Constructor) {
	r.register(kindMessage, endpointName, c)
}
