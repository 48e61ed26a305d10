package rest

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/sqlgate/sqlgate/pkg/registry"
)

// BoundParam is one request value coerced to its declared type and pinned to
// its 1-based placeholder position.
type BoundParam struct {
	Name     string
	Value    any
	Type     registry.ParamType
	Position int
}

// buildParamMap flattens path, query-string, and form values into one map.
// When a key appears in more than one source, or more than once within a
// source, the first encountered value wins; precedence is path, then query
// string, then form.
func buildParamMap(r *http.Request, pathParams []string) map[string]string {
	values := make(map[string]string)

	for _, name := range pathParams {
		if v := r.PathValue(name); v != "" {
			values[name] = v
		}
	}
	for key, vs := range r.URL.Query() {
		if _, ok := values[key]; !ok && len(vs) > 0 {
			values[key] = vs[0]
		}
	}
	if err := r.ParseForm(); err == nil {
		for key, vs := range r.PostForm {
			if _, ok := values[key]; !ok && len(vs) > 0 {
				values[key] = vs[0]
			}
		}
	}
	return values
}

// bindParams maps the flattened value map onto a query's declared parameter
// list. A required parameter with no value is a BadRequest naming that
// parameter; a present value that cannot be coerced to its declared type is
// a BadRequest as well. Optional parameters with no value bind as NULL so
// the placeholder count stays aligned. The result is ordered by position.
func bindParams(specs []registry.ParameterSpec, values map[string]string) ([]BoundParam, *StatusError) {
	bound := make([]BoundParam, 0, len(specs))
	for _, spec := range specs {
		raw, ok := values[spec.Name]
		if !ok {
			if spec.Required {
				return nil, badRequestf("missing required parameter %q", spec.Name)
			}
			bound = append(bound, BoundParam{Name: spec.Name, Value: nil, Type: spec.Type, Position: spec.Position})
			continue
		}
		value, err := coerce(spec.Type, raw)
		if err != nil {
			return nil, badRequestf("parameter %q: %v", spec.Name, err)
		}
		bound = append(bound, BoundParam{Name: spec.Name, Value: value, Type: spec.Type, Position: spec.Position})
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].Position < bound[j].Position })
	return bound, nil
}

func coerce(t registry.ParamType, raw string) (any, error) {
	switch t {
	case registry.TypeInteger:
		return cast.ToInt32E(raw)
	case registry.TypeLong:
		return cast.ToInt64E(raw)
	case registry.TypeBoolean:
		return cast.ToBoolE(raw)
	case registry.TypeDouble:
		return cast.ToFloat64E(raw)
	case registry.TypeTimestamp:
		return cast.ToTimeE(raw)
	case registry.TypeDecimal:
		return decimal.NewFromString(raw)
	default: // TypeString and anything load-time validation let through
		return raw, nil
	}
}

// stripParams removes the named parameters and renumbers the remaining
// positions contiguously from 1, so they again match the `?` placeholders
// of a SQL text that does not carry the dropped ones (the count query,
// which has no limit/offset).
func stripParams(bound []BoundParam, drop ...string) []BoundParam {
	dropped := make(map[string]bool, len(drop))
	for _, name := range drop {
		dropped[name] = true
	}
	out := make([]BoundParam, 0, len(bound))
	for _, p := range bound {
		if dropped[p.Name] {
			continue
		}
		p.Position = len(out) + 1
		out = append(out, p)
	}
	return out
}

// pageRequest is a validated page window.
type pageRequest struct {
	page int
	size int
}

// pageFromValues reads page/size from the request values, applies the
// endpoint's defaults and bounds, and synthesizes the limit and offset
// parameters into the value map before binding.
func pageFromValues(values map[string]string, spec *registry.PaginationSpec) (pageRequest, *StatusError) {
	pr := pageRequest{page: 0, size: spec.DefaultSize}

	if raw, ok := values["page"]; ok {
		page, err := cast.ToIntE(raw)
		if err != nil {
			return pr, badRequestf("parameter %q: %v", "page", err)
		}
		pr.page = page
	}
	if raw, ok := values["size"]; ok {
		size, err := cast.ToIntE(raw)
		if err != nil {
			return pr, badRequestf("parameter %q: %v", "size", err)
		}
		pr.size = size
	}

	if pr.page < 0 {
		return pr, badRequestf("page must not be negative, got %d", pr.page)
	}
	if pr.size <= 0 {
		return pr, badRequestf("size must be positive, got %d", pr.size)
	}
	if spec.MaxSize > 0 && pr.size > spec.MaxSize {
		return pr, badRequestf("size %d exceeds maximum %d", pr.size, spec.MaxSize)
	}

	values["limit"] = strconv.Itoa(pr.size)
	values["offset"] = strconv.Itoa(pr.page * pr.size)
	return pr, nil
}
