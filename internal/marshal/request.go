package marshal

import (
	"github.com/gantry-run/gantry/internal/handler"
)

// QueryParamsField is the normalized field name query parameters are
// merged under in a request value.
const QueryParamsField = "query_params"

// BuildRequest constructs the request value for an api-style handler:
// raw payload fields merged with query parameters under the normalized
// field name. A registered <HandlerName>Request constructor produces
// the typed form; otherwise the handler sees the merged map.
func (r *Registry) BuildRequest(ctx *handler.InvocationContext) Decoded {
	fields := requestFields(ctx)

	c, ok := r.lookup(kindRequest, ctx.HandlerName)
	if !ok {
		fellBack(kindRequest, ctx.HandlerName, nil)
		return rawValue(fields)
	}
	v, err := c(fields)
	if err != nil {
		fellBack(kindRequest, ctx.HandlerName, err)
		return rawValue(fields)
	}
	return typed(v)
}

// requestFields flattens the payload. A payload with a body key passes
// just the body through; any other map contributes its fields
// directly. Query parameters always ride along.
func requestFields(ctx *handler.InvocationContext) map[string]any {
	fields := map[string]any{}
	if payload, ok := ctx.Payload.(map[string]any); ok {
		if body, hasBody := payload["body"]; hasBody {
			fields["body"] = body
		} else {
			for k, v := range payload {
				fields[k] = v
			}
		}
	}
	fields[QueryParamsField] = ctx.QueryParams
	return fields
}
