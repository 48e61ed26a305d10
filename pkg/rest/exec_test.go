package rest

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyRows is a pgx.Rows that yields no rows.
type emptyRows struct {
	fields []pgconn.FieldDescription
}

func (r emptyRows) Close()                                       {}
func (r emptyRows) Err() error                                   { return nil }
func (r emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r emptyRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r emptyRows) Next() bool                                   { return false }
func (r emptyRows) Scan(dest ...any) error                       { return nil }
func (r emptyRows) Values() ([]any, error)                       { return nil, nil }
func (r emptyRows) RawValues() [][]byte                          { return nil }
func (r emptyRows) Conn() *pgx.Conn                              { return nil }

func TestEmptyResultSerializesAsArray(t *testing.T) {
	rows, err := rowsToMaps(emptyRows{fields: []pgconn.FieldDescription{{Name: "id"}}})
	require.NoError(t, err)
	require.NotNil(t, rows)
	assert.Empty(t, rows)

	body, err := json.Marshal(shapePage(rows, pageRequest{page: 0, size: 20}, 0))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"data":[]`)
}

func TestShapeSingle(t *testing.T) {
	t.Run("zero rows is not found", func(t *testing.T) {
		_, serr := shapeSingle(nil)
		require.NotNil(t, serr)
		assert.Equal(t, 404, serr.Code)
	})

	t.Run("one row is SINGLE", func(t *testing.T) {
		env, serr := shapeSingle([]map[string]any{{"id": 1}})
		require.Nil(t, serr)
		assert.Equal(t, TypeSingle, env.Type)
		assert.Equal(t, map[string]any{"id": 1}, env.Data)
	})

	t.Run("many rows degrade to LIST", func(t *testing.T) {
		env, serr := shapeSingle([]map[string]any{{"id": 1}, {"id": 2}})
		require.Nil(t, serr)
		assert.Equal(t, TypeList, env.Type)
		assert.Nil(t, env.Pagination)
	})
}

func TestShapePage(t *testing.T) {
	rows := []map[string]any{{"id": 1}}

	t.Run("first page", func(t *testing.T) {
		env := shapePage(rows, pageRequest{page: 0, size: 20}, 45)
		assert.Equal(t, TypePaged, env.Type)
		require.NotNil(t, env.Pagination)
		assert.Equal(t, 0, env.Pagination.Page)
		assert.Equal(t, 20, env.Pagination.Size)
		assert.Equal(t, int64(45), env.Pagination.TotalElements)
		assert.Equal(t, int64(3), env.Pagination.TotalPages)
		assert.True(t, env.Pagination.First)
		assert.False(t, env.Pagination.Last)
	})

	t.Run("last page", func(t *testing.T) {
		env := shapePage(rows, pageRequest{page: 2, size: 20}, 45)
		assert.False(t, env.Pagination.First)
		assert.True(t, env.Pagination.Last)
	})

	t.Run("no count query reports zero totals", func(t *testing.T) {
		env := shapePage(rows, pageRequest{page: 0, size: 20}, 0)
		assert.Equal(t, int64(0), env.Pagination.TotalElements)
		assert.Equal(t, int64(0), env.Pagination.TotalPages)
		assert.True(t, env.Pagination.First)
		assert.True(t, env.Pagination.Last)
	})

	t.Run("exact multiple", func(t *testing.T) {
		env := shapePage(rows, pageRequest{page: 1, size: 20}, 40)
		assert.Equal(t, int64(2), env.Pagination.TotalPages)
		assert.True(t, env.Pagination.Last)
	})
}
