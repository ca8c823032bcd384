package resolve

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gantry-run/gantry/internal/handler"
)

// Exports is the uniform view of a loaded module that the policy
// evaluates against. loader.Module satisfies it.
type Exports interface {
	// Lookup returns the named export.
	Lookup(name string) (reflect.Value, bool)
	// Names lists every export name.
	Names() []string
	// Callable returns the module itself when it is directly invocable.
	Callable() (reflect.Value, bool)
}

// Resolution is the selected handler function together with the name it
// was found under and the rule that matched, for diagnostics.
type Resolution struct {
	Fn   reflect.Value
	Name string
	Rule string
}

// NotFoundError reports that no rule matched. Attempted lists every
// name the policy tried, in order.
type NotFoundError struct {
	HandlerName string
	Kind        handler.Kind
	Attempted   []string
	Exported    []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf(
		"no handler function found for %q (kind %s): tried %s; module exports [%s]",
		e.HandlerName, e.Kind,
		strings.Join(e.Attempted, ", "),
		strings.Join(e.Exported, ", "),
	)
}

// rule is one (name-transform, description) entry of a resolution
// policy. Exact rules name a single export; scan rules consider every
// export in sorted order.
type rule struct {
	describe string
	pick     func(mod Exports, name string) (reflect.Value, string, bool)
}

func exact(describe string, transform func(string) string) rule {
	return rule{
		describe: describe,
		pick: func(mod Exports, name string) (reflect.Value, string, bool) {
			candidate := transform(name)
			if fn, ok := mod.Lookup(candidate); ok && fn.Kind() == reflect.Func {
				return fn, candidate, true
			}
			return reflect.Value{}, candidate, false
		},
	}
}

func scan(describe string, match func(name string) bool) rule {
	return rule{
		describe: describe,
		pick: func(mod Exports, _ string) (reflect.Value, string, bool) {
			names := append([]string(nil), mod.Names()...)
			sort.Strings(names)
			for _, n := range names {
				if !match(n) {
					continue
				}
				if fn, ok := mod.Lookup(n); ok && fn.Kind() == reflect.Func {
					return fn, n, true
				}
			}
			return reflect.Value{}, "<" + describe + ">", false
		},
	}
}

// policyFor returns the ordered rules for a handler kind.
func policyFor(kind handler.Kind) []rule {
	switch kind {
	case handler.KindEvent, handler.KindWebsocket:
		return []rule{
			exact("handle_<name>", func(n string) string { return "handle_" + n }),
			exact("<name>", func(n string) string { return n }),
		}
	case handler.KindMiddleware:
		return []rule{
			exact("<snake>_middleware", func(n string) string { return ToSnakeCase(n) + "_middleware" }),
		}
	default: // api, cron, anything unrecognized
		return []rule{
			exact("handle_<snake>", func(n string) string { return "handle_" + ToSnakeCase(n) }),
			exact("handle<Pascal>", func(n string) string { return "handle" + ToPascalCase(n) }),
			scan("first handle* export", func(n string) bool { return strings.HasPrefix(n, "handle") }),
			scan("first callable export", func(string) bool { return true }),
		}
	}
}

// Handler applies the resolution policy for kind against the module's
// export table. First matching rule wins. As a final fallback for
// api-style kinds, a module that is itself invocable is used directly.
func Handler(mod Exports, handlerName string, kind handler.Kind) (*Resolution, error) {
	var attempted []string
	for _, r := range policyFor(kind) {
		fn, name, ok := r.pick(mod, handlerName)
		if ok {
			return &Resolution{Fn: fn, Name: name, Rule: r.describe}, nil
		}
		attempted = append(attempted, name)
	}

	if kind != handler.KindEvent && kind != handler.KindWebsocket && kind != handler.KindMiddleware {
		if fn, ok := mod.Callable(); ok && fn.Kind() == reflect.Func {
			return &Resolution{Fn: fn, Name: "<module>", Rule: "module itself is callable"}, nil
		}
		attempted = append(attempted, "<module as function>")
	}

	exported := append([]string(nil), mod.Names()...)
	sort.Strings(exported)
	return nil, &NotFoundError{
		HandlerName: handlerName,
		Kind:        kind,
		Attempted:   attempted,
		Exported:    exported,
	}
}
