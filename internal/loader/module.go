package loader

import (
	"fmt"
	"reflect"
	"strings"
)

// Module is the uniform export table every loader strategy produces.
// It satisfies resolve.Exports.
type Module interface {
	// Lookup returns the export bound to name.
	Lookup(name string) (reflect.Value, bool)
	// Names lists every export name, unordered.
	Names() []string
	// Callable returns the module value itself when the module as a
	// whole is directly invocable.
	Callable() (reflect.Value, bool)
}

// LoadFailureError aggregates the failure of every strategy attempted
// against one artifact. It is only constructed once the strategy list
// is exhausted.
type LoadFailureError struct {
	ArtifactPath string
	Attempts     []Attempt
}

// Attempt records one strategy's failure.
type Attempt struct {
	Strategy string
	Err      error
}

func (e *LoadFailureError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("failed to load module %s: %s", e.ArtifactPath, strings.Join(parts, "; "))
}

// errNoExports marks a module that loaded but exposes nothing the
// resolver could ever pick. Treated as a per-strategy load failure so
// the next strategy still runs.
var errNoExports = fmt.Errorf("module loaded but exposes no usable exports")
