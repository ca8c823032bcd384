package marshal

import "github.com/sirupsen/logrus"

// Source says whether a constructed value came from a generated type
// or from the structural fallback.
type Source string

const (
	// DecodedTyped means a registered constructor accepted the fields.
	DecodedTyped Source = "typed"
	// FallbackRaw means no constructor was available or it rejected the
	// fields, so the handler sees the plain structural value.
	FallbackRaw Source = "raw"
)

// Decoded is a constructed handler argument tagged with its origin.
type Decoded struct {
	Value  any
	Source Source
}

func typed(v any) Decoded   { return Decoded{Value: v, Source: DecodedTyped} }
func rawValue(v any) Decoded { return Decoded{Value: v, Source: FallbackRaw} }

// fellBack logs an observable fallback. Debug level: this is routine
// for projects without codegen output, interesting when debugging type
// mismatches.
func fellBack(kind registryKind, name string, err error) {
	entry := logrus.WithFields(logrus.Fields{"kind": kind, "name": name})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("typed construction unavailable, using raw value")
}
