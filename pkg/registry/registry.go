package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sqlgate/sqlgate/pkg/sqlscan"
)

// ValidationReport is the structured outcome of referential-integrity
// validation over a definition set. It enumerates findings instead of
// collapsing them into a boolean so operators can see every problem at once.
type ValidationReport struct {
	Errors      []string  `json:"errors"`
	Warnings    []string  `json:"warnings"`
	Databases   int       `json:"databases"`
	Queries     int       `json:"queries"`
	Endpoints   int       `json:"endpoints"`
	GeneratedAt time.Time `json:"generatedAt"`
}

func (r *ValidationReport) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ConfigError is returned by Build when validation finds errors. It carries
// the full report so callers can surface every finding, not just the first.
type ConfigError struct {
	Report *ValidationReport
}

func (e *ConfigError) Error() string {
	if len(e.Report.Errors) == 1 {
		return "invalid configuration: " + e.Report.Errors[0]
	}
	return fmt.Sprintf("invalid configuration: %s (and %d more errors)",
		e.Report.Errors[0], len(e.Report.Errors)-1)
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// ManagementPrefix is reserved for the gateway's own read-only endpoints.
const ManagementPrefix = "/api/"

// Validate runs the full referential-integrity check over a definition set
// and returns the structured report. It never mutates defs.
func Validate(defs *Definitions) *ValidationReport {
	report := &ValidationReport{
		Databases:   len(defs.Databases),
		Queries:     len(defs.Queries),
		Endpoints:   len(defs.Endpoints),
		GeneratedAt: time.Now().UTC(),
	}

	for _, name := range sortedKeys(defs.Databases) {
		db := defs.Databases[name]
		if db.URL == "" {
			report.errorf("database %q has no connection URL", name)
		}
		switch strings.ToLower(db.Driver) {
		case "", "postgres", "postgresql", "pgx":
		default:
			report.errorf("database %q declares unsupported driver %q", name, db.Driver)
		}
	}

	for _, name := range sortedKeys(defs.Queries) {
		q := defs.Queries[name]
		if q.SQL == "" {
			report.errorf("query %q has no SQL text", name)
		}
		if _, ok := defs.Databases[q.Database]; !ok {
			report.errorf("query %q references unknown database %q", name, q.Database)
		}
		if n := sqlscan.CountPlaceholders(q.SQL); n != len(q.Parameters) {
			report.errorf("query %q declares %d parameters but its SQL contains %d placeholders",
				name, len(q.Parameters), n)
		}
		validatePositions(report, "query", name, q.Parameters)
	}

	seenRoutes := make(map[string]string)
	for _, name := range sortedKeys(defs.Endpoints) {
		ep := defs.Endpoints[name]
		if !httpMethods[strings.ToUpper(ep.Method)] {
			report.errorf("endpoint %q declares invalid HTTP method %q", name, ep.Method)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			report.errorf("endpoint %q path %q must start with /", name, ep.Path)
		} else if strings.HasPrefix(ep.Path, ManagementPrefix) {
			report.warnf("endpoint %q path %q is under the reserved %s prefix", name, ep.Path, ManagementPrefix)
		}
		if _, ok := defs.Queries[ep.Query]; !ok {
			report.errorf("endpoint %q references unknown query %q", name, ep.Query)
		}
		if ep.CountQuery != "" {
			if _, ok := defs.Queries[ep.CountQuery]; !ok {
				report.errorf("endpoint %q references unknown count query %q", name, ep.CountQuery)
			}
		}
		if p := ep.Pagination; p != nil && p.Enabled {
			if p.DefaultSize <= 0 {
				report.errorf("endpoint %q pagination default size must be positive", name)
			}
			if p.MaxSize > 0 && p.MaxSize < p.DefaultSize {
				report.errorf("endpoint %q pagination max size %d is below default size %d",
					name, p.MaxSize, p.DefaultSize)
			}
			if ep.CountQuery == "" {
				report.warnf("endpoint %q enables pagination without a count query; totalElements will be reported as 0", name)
			}
		}
		route := strings.ToUpper(ep.Method) + " " + ep.Path
		if prev, ok := seenRoutes[route]; ok {
			report.errorf("endpoints %q and %q both register route %q", prev, name, route)
		}
		seenRoutes[route] = name
	}

	return report
}

func validatePositions(report *ValidationReport, kind, name string, params []ParameterSpec) {
	seen := make(map[int]bool, len(params))
	for _, p := range params {
		if p.Position < 1 || p.Position > len(params) {
			report.errorf("%s %q parameter %q has position %d outside 1..%d",
				kind, name, p.Name, p.Position, len(params))
			continue
		}
		if seen[p.Position] {
			report.errorf("%s %q declares position %d more than once", kind, name, p.Position)
		}
		seen[p.Position] = true
	}
}

// Registry is an immutable snapshot of validated definitions. Concurrent
// reads need no synchronization; a reload builds a fresh Registry and swaps
// it through a Store.
type Registry struct {
	defs   *Definitions
	report *ValidationReport
}

// Build validates defs and returns the immutable registry. When validation
// finds errors the returned error is a *ConfigError carrying the report, and
// startup must abort: degrading to a partial registry is the failure mode
// this gateway refuses to have.
func Build(defs *Definitions) (*Registry, error) {
	report := Validate(defs)
	if !report.Valid() {
		return nil, &ConfigError{Report: report}
	}
	return &Registry{defs: defs, report: report}, nil
}

// Database looks up a database definition. Absence is a normal condition
// once the registry is known-valid, so it is signalled, not raised.
func (r *Registry) Database(name string) (DatabaseDefinition, bool) {
	def, ok := r.defs.Databases[name]
	return def, ok
}

func (r *Registry) Query(name string) (QueryDefinition, bool) {
	def, ok := r.defs.Queries[name]
	return def, ok
}

func (r *Registry) Endpoint(name string) (EndpointDefinition, bool) {
	def, ok := r.defs.Endpoints[name]
	return def, ok
}

// Endpoints returns all endpoint definitions sorted by name.
func (r *Registry) Endpoints() []EndpointDefinition {
	out := make([]EndpointDefinition, 0, len(r.defs.Endpoints))
	for _, name := range sortedKeys(r.defs.Endpoints) {
		out = append(out, r.defs.Endpoints[name])
	}
	return out
}

func (r *Registry) Queries() []QueryDefinition {
	out := make([]QueryDefinition, 0, len(r.defs.Queries))
	for _, name := range sortedKeys(r.defs.Queries) {
		out = append(out, r.defs.Queries[name])
	}
	return out
}

func (r *Registry) Databases() []DatabaseDefinition {
	out := make([]DatabaseDefinition, 0, len(r.defs.Databases))
	for _, name := range sortedKeys(r.defs.Databases) {
		out = append(out, r.defs.Databases[name])
	}
	return out
}

// DatabaseDefs returns the database map keyed by name for pool construction.
func (r *Registry) DatabaseDefs() map[string]DatabaseDefinition {
	return r.defs.Databases
}

// Definitions exposes the underlying raw set for on-demand re-validation.
// Callers must treat it as read-only.
func (r *Registry) Definitions() *Definitions {
	return r.defs
}

// Report returns the validation report produced at build time.
func (r *Registry) Report() *ValidationReport {
	return r.report
}

// ValidateChain re-runs the referential checks on demand. On a registry
// built through Build this reproduces the load-time result; it exists so the
// configuration-chain report can be served without keeping stale state.
func (r *Registry) ValidateChain() *ValidationReport {
	return Validate(r.defs)
}

// EndpointDatabases returns the sorted names of every database reachable
// from a registered endpoint via its primary or count query.
func (r *Registry) EndpointDatabases() []string {
	set := make(map[string]bool)
	for _, ep := range r.defs.Endpoints {
		if q, ok := r.defs.Queries[ep.Query]; ok {
			set[q.Database] = true
		}
		if ep.CountQuery != "" {
			if q, ok := r.defs.Queries[ep.CountQuery]; ok {
				set[q.Database] = true
			}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
