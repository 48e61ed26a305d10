// Package testutil builds known-good definition fixtures shared by tests.
package testutil

import (
	"github.com/sqlgate/sqlgate/pkg/registry"
)

// Definitions returns a small valid definition set: one database, a lookup
// query with a required path parameter, and a paginated list query with its
// count companion.
func Definitions() *registry.Definitions {
	defs := registry.NewDefinitions()

	defs.AddDatabase("fixture", registry.DatabaseDefinition{
		Name: "warehouse",
		URL:  "postgres://localhost:5432/warehouse",
	})

	defs.AddQuery("fixture", registry.QueryDefinition{
		Name:     "order-by-id",
		SQL:      "SELECT id, customer, total FROM orders WHERE id = ?",
		Database: "warehouse",
		Parameters: []registry.ParameterSpec{
			{Name: "id", Type: registry.TypeLong, Required: true, Position: 1},
		},
	})
	defs.AddQuery("fixture", registry.QueryDefinition{
		Name:     "orders-by-customer",
		SQL:      "SELECT id, customer, total FROM orders WHERE customer = ? LIMIT ? OFFSET ?",
		Database: "warehouse",
		Parameters: []registry.ParameterSpec{
			{Name: "customer", Type: registry.TypeString, Required: true, Position: 1},
			{Name: "limit", Type: registry.TypeInteger, Required: true, Position: 2},
			{Name: "offset", Type: registry.TypeInteger, Required: true, Position: 3},
		},
	})
	defs.AddQuery("fixture", registry.QueryDefinition{
		Name:     "orders-by-customer-count",
		SQL:      "SELECT COUNT(*) FROM orders WHERE customer = ?",
		Database: "warehouse",
		Parameters: []registry.ParameterSpec{
			{Name: "customer", Type: registry.TypeString, Required: true, Position: 1},
		},
	})

	defs.AddEndpoint("fixture", registry.EndpointDefinition{
		Name:   "get-order",
		Method: "GET",
		Path:   "/orders/{id}",
		Query:  "order-by-id",
	})
	defs.AddEndpoint("fixture", registry.EndpointDefinition{
		Name:       "list-orders",
		Method:     "GET",
		Path:       "/orders",
		Query:      "orders-by-customer",
		CountQuery: "orders-by-customer-count",
		Pagination: &registry.PaginationSpec{Enabled: true, DefaultSize: 20, MaxSize: 100},
	})

	return defs
}

// Registry builds the fixture definitions into a validated registry,
// panicking on failure so broken fixtures fail loudly.
func Registry() *registry.Registry {
	reg, err := registry.Build(Definitions())
	if err != nil {
		panic(err)
	}
	return reg
}
