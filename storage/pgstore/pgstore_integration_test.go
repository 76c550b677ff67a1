//go:build integration

package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
)

// TestEngineAgainstRealPostgres spins up a throwaway postgres:16 container
// via testcontainers-go's postgres module, the way the teacher's
// e2e_harness.TestHarness.StartPostgres boots one for its own suite, and
// drives one create/insert/scan/delete cycle through the real driver instead
// of pgxmock.
func TestEngineAgainstRealPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("lumen"),
		postgres.WithUsername("lumen"),
		postgres.WithPassword("lumen"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	eng, closer, err := Open(ctx, lumen.PostgresConfig{Enabled: true, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer() })

	cols := []catalog.ColumnDesc{
		{DataType: lumen.Int32Type(false), IsPrimary: true},
		{DataType: lumen.StringType(true)},
	}
	require.NoError(t, eng.CreateTable(ctx, catalog.TableId(1), catalog.SchemaId(1), "t", cols, []string{"a", "b"}, []int{0}))

	tbl, err := eng.GetTable(ctx, catalog.TableId(1))
	require.NoError(t, err)

	txn, err := tbl.Read(ctx)
	require.NoError(t, err)

	builder := array.NewDataChunkBuilder([]lumen.DataType{lumen.Int32Type(false), lumen.StringType(true)}, array.DefaultWindow)
	builder.PushRow([]lumen.Value{lumen.Int32Value(1), lumen.StringValue("hello")})
	chunk := builder.Take()
	require.NotNil(t, chunk)
	require.NoError(t, txn.Append(ctx, chunk))
	require.NoError(t, txn.Commit(ctx))

	txn, err = tbl.Read(ctx)
	require.NoError(t, err)
	it, err := txn.Scan(ctx, nil, nil, []catalog.ColumnId{1, 2}, true, false, nil)
	require.NoError(t, err)
	got, err := it.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 1, got.Cardinality())
	row := got.Rows()[0]
	require.Equal(t, int32(1), row.At(0).Int32())
	require.Equal(t, "hello", row.At(1).String())
	require.NoError(t, txn.Commit(ctx))

	require.NoError(t, eng.DropTable(ctx, catalog.TableId(1)))
}
