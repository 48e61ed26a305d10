// Package schemacheck verifies declared queries against the live database
// schema. The SQL analysis is lexical, not a full parse: it recognizes the
// common SELECT shapes and stays silent on anything it cannot attribute, so
// a finding here is advisory rather than authoritative.
package schemacheck

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sqlgate/sqlgate/pkg/pgpool"
	"github.com/sqlgate/sqlgate/pkg/registry"
	"github.com/sqlgate/sqlgate/pkg/sqlscan"
)

// Check is one finding against a named subject.
type Check struct {
	Level   string `json:"level"` // ERROR or WARNING
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Phase groups the findings of one validation stage.
type Phase struct {
	Name   string  `json:"name"`
	Status string  `json:"status"` // PASSED, FAILED, or SKIPPED
	Checks []Check `json:"checks"`
}

// Report is the outcome of a full validation run.
type Report struct {
	Valid       bool      `json:"valid"`
	Phases      []Phase   `json:"phases"`
	GeneratedAt time.Time `json:"generatedAt"`
}

const (
	LevelError   = "ERROR"
	LevelWarning = "WARNING"

	StatusPassed  = "PASSED"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// Validator runs the configuration chain checks and then the schema checks
// over one definition set.
type Validator struct {
	defs   *registry.Definitions
	pools  *pgpool.Manager
	logger *zap.Logger
}

func New(defs *registry.Definitions, pools *pgpool.Manager, logger *zap.Logger) *Validator {
	return &Validator{defs: defs, pools: pools, logger: logger}
}

// Run executes both phases. The schema phase is skipped entirely when the
// configuration chain fails: probing live databases with definitions that
// reference unknown names would only pile derived noise on the root cause.
func (v *Validator) Run(ctx context.Context) *Report {
	report := &Report{GeneratedAt: time.Now().UTC()}

	chain := chainPhase(v.defs)
	report.Phases = append(report.Phases, chain)

	if chain.Status == StatusFailed {
		report.Phases = append(report.Phases, Phase{Name: "schema", Status: StatusSkipped})
		return report
	}

	report.Phases = append(report.Phases, v.schemaPhase(ctx))

	report.Valid = true
	for _, p := range report.Phases {
		if p.Status == StatusFailed {
			report.Valid = false
		}
	}
	return report
}

// ChainReport runs only the configuration-chain phase, in the same report
// shape a full run produces. Used when no database should be contacted.
func ChainReport(defs *registry.Definitions) *Report {
	chain := chainPhase(defs)
	return &Report{
		Valid:       chain.Status != StatusFailed,
		Phases:      []Phase{chain},
		GeneratedAt: time.Now().UTC(),
	}
}

func chainPhase(defs *registry.Definitions) Phase {
	vr := registry.Validate(defs)
	phase := Phase{Name: "configuration-chain", Status: StatusPassed}
	for _, msg := range vr.Errors {
		phase.Checks = append(phase.Checks, Check{Level: LevelError, Subject: "configuration", Message: msg})
		phase.Status = StatusFailed
	}
	for _, msg := range vr.Warnings {
		phase.Checks = append(phase.Checks, Check{Level: LevelWarning, Subject: "configuration", Message: msg})
	}
	return phase
}

// schemaPhase checks every query's referenced tables and columns against the
// live schema of its database. A database whose metadata cannot be read
// fails with a single finding and its queries are not inspected; the other
// databases still are.
func (v *Validator) schemaPhase(ctx context.Context) Phase {
	phase := Phase{Name: "schema", Status: StatusPassed}

	byDatabase := make(map[string][]registry.QueryDefinition)
	for _, name := range sortedQueryNames(v.defs) {
		q := v.defs.Queries[name]
		byDatabase[q.Database] = append(byDatabase[q.Database], q)
	}

	databases := make([]string, 0, len(byDatabase))
	for name := range byDatabase {
		databases = append(databases, name)
	}
	sort.Strings(databases)

	for _, database := range databases {
		md, err := loadMetadata(ctx, v.pools, database)
		if err != nil {
			v.logger.Warn("schema metadata unavailable",
				zap.String("database", database), zap.Error(err))
			phase.Checks = append(phase.Checks, Check{
				Level:   LevelError,
				Subject: "database " + database,
				Message: "schema metadata unavailable: " + err.Error(),
			})
			phase.Status = StatusFailed
			continue
		}
		for _, q := range byDatabase[database] {
			checks := checkQuery(q, md)
			phase.Checks = append(phase.Checks, checks...)
			for _, c := range checks {
				if c.Level == LevelError {
					phase.Status = StatusFailed
				}
			}
		}
	}
	return phase
}

// checkQuery compares one query's lexically extracted references with the
// database metadata. Missing tables are errors; missing columns are only
// warnings because the scanner can surface aliases and expression names that
// were never real columns.
func checkQuery(q registry.QueryDefinition, md *dbMetadata) []Check {
	ext := sqlscan.Extract(q.SQL)
	subject := "query " + q.Name

	var checks []Check
	if ext.Placeholders != len(q.Parameters) {
		checks = append(checks, Check{
			Level:   LevelError,
			Subject: subject,
			Message: fmt.Sprintf("declares %d parameters but its SQL contains %d placeholders",
				len(q.Parameters), ext.Placeholders),
		})
	}
	for _, table := range ext.Tables {
		if !md.hasTable(table) {
			checks = append(checks, Check{
				Level:   LevelError,
				Subject: subject,
				Message: "references table " + table + " which does not exist",
			})
		}
	}

	for _, column := range ext.Columns {
		if column == "*" {
			continue
		}
		found := false
		for _, table := range ext.Tables {
			if md.hasColumn(table, column) {
				found = true
				break
			}
		}
		if !found {
			checks = append(checks, Check{
				Level:   LevelWarning,
				Subject: subject,
				Message: "column " + column + " not found in any referenced table",
			})
		}
	}
	return checks
}

func sortedQueryNames(defs *registry.Definitions) []string {
	names := make([]string, 0, len(defs.Queries))
	for name := range defs.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
