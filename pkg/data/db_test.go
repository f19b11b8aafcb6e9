package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), DriverSQLite, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestForecast(t *testing.T, s *Store, category string, points ...float64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.AddForecast(ctx, &Forecast{
		Question: "Will it happen?",
		Category: category,
	})
	require.NoError(t, err)
	for _, p := range points {
		_, err := s.AddPoint(ctx, &Point{ForecastID: id, Estimate: p})
		require.NoError(t, err)
	}
	return id
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	s, err := Open(context.Background(), DriverSQLite, dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestOpen_DefaultDriver(t *testing.T) {
	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), DriverSQLite, "")
	assert.Error(t, err)

	_, err = Open(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(context.Background(), DriverSQLite, dbPath)
	require.NoError(t, err)
	_, err = s1.AddForecast(context.Background(), &Forecast{Question: "Q?"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), DriverSQLite, dbPath)
	require.NoError(t, err)
	defer s2.Close()

	list, err := s2.ListForecasts(context.Background(), "", StatusAll)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.GetForecast(context.Background(), 1)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.NoError(t, s.Close())
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ?"

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, q, lite.rebind(q))

	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind(q))
}

func TestContainsExpr(t *testing.T) {
	assert.Equal(t, "instr(f.category, ?) > 0", (&Store{driver: DriverSQLite}).containsExpr("f.category"))
	assert.Equal(t, "strpos(f.category, ?) > 0", (&Store{driver: DriverPostgres}).containsExpr("f.category"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b", "c"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "d"))
	assert.False(t, Contains[string](nil, "a"))
}
