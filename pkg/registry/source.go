package registry

import (
	"context"
	"fmt"
)

// Source loads raw definition sets from a backend. File documents and
// relational rows are equally valid backends; the registry does not care
// which one produced the maps.
type Source interface {
	Load(ctx context.Context) (*Definitions, error)
}

// Definitions is the raw, possibly-invalid result of loading a Source.
// Provenance is tracked per key so duplicate names across documents can be
// reported with both contributing sources.
type Definitions struct {
	Databases map[string]DatabaseDefinition
	Queries   map[string]QueryDefinition
	Endpoints map[string]EndpointDefinition

	origins map[string]string
}

func NewDefinitions() *Definitions {
	return &Definitions{
		Databases: make(map[string]DatabaseDefinition),
		Queries:   make(map[string]QueryDefinition),
		Endpoints: make(map[string]EndpointDefinition),
		origins:   make(map[string]string),
	}
}

// AddDatabase records a database definition from the named source, failing
// when the key was already contributed by another source.
func (d *Definitions) AddDatabase(source string, def DatabaseDefinition) error {
	if err := d.claim("database", def.Name, source); err != nil {
		return err
	}
	d.Databases[def.Name] = def
	return nil
}

func (d *Definitions) AddQuery(source string, def QueryDefinition) error {
	if err := d.claim("query", def.Name, source); err != nil {
		return err
	}
	d.Queries[def.Name] = def
	return nil
}

func (d *Definitions) AddEndpoint(source string, def EndpointDefinition) error {
	if err := d.claim("endpoint", def.Name, source); err != nil {
		return err
	}
	d.Endpoints[def.Name] = def
	return nil
}

func (d *Definitions) claim(kind, name, source string) error {
	key := kind + "/" + name
	if prev, ok := d.origins[key]; ok {
		return fmt.Errorf("duplicate %s %q defined in both %s and %s", kind, name, prev, source)
	}
	d.origins[key] = source
	return nil
}

// checkComplete enforces the fail-fast load policy: a source set that yields
// no definitions of some kind is a fatal configuration error, never an empty
// map to limp along with.
func (d *Definitions) checkComplete() error {
	var missing []string
	if len(d.Databases) == 0 {
		missing = append(missing, "databases")
	}
	if len(d.Queries) == 0 {
		missing = append(missing, "queries")
	}
	if len(d.Endpoints) == 0 {
		missing = append(missing, "endpoints")
	}
	if len(missing) > 0 {
		return fmt.Errorf("configuration source defines no %v", missing)
	}
	return nil
}
