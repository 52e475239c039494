package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mock"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/schema"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// fakeDriver is a minimal database/sql/driver.Driver backing the real
// *sql.DB that DB.Raw holds for RECORD-mode tests, grounded on the
// hangingConnector fake in dd-trace-go's contrib/database/sql/sql_test.go.
type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return &fakeConn{}, nil }

type fakeConn struct{}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                 { return nil, driver.ErrSkip }

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return &fakeRows{cols: []string{"id", "name"}, rows: [][]driver.Value{{int64(1), "Ann"}}}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return fakeResult{lastID: 7, affected: 1}, nil
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type fakeResult struct{ lastID, affected int64 }

func (f fakeResult) LastInsertId() (int64, error) { return f.lastID, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.affected, nil }

var registerFakeDriverOnce sync.Once

func openFakeDB(t *testing.T) *sql.DB {
	t.Helper()
	registerFakeDriverOnce.Do(func() { sql.Register("sqldriver-fake", fakeDriver{}) })
	db, err := sql.Open("sqldriver-fake", "fake-dsn")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func startInstance(t *testing.T, m mode.Mode, store *mock.Store) *driftsdk.Instance {
	t.Helper()
	if store == nil {
		store = mock.NewStore()
	}
	inst, err := driftsdk.Start(
		func(c *driftsdk.Config) { c.Mode = m },
		driftsdk.WithLocalMockStore(store),
	)
	require.NoError(t, err)
	t.Cleanup(inst.Stop)
	return inst
}

func newDB(t *testing.T, inst *driftsdk.Instance) *DB {
	return &DB{
		Raw:                 openFakeDB(t),
		Inst:                inst,
		PackageName:         "fakesql",
		InstrumentationName: "contrib/sqldriver_test",
		PackageType:         tdcontext.PackagePostgres,
	}
}

func TestQueryRowsContext_RecordModeCapturesRealRows(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	db := newDB(t, inst)

	cols, rows, err := db.QueryRowsContext(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
	assert.Equal(t, [][]interface{}{{int64(1), "Ann"}}, rows)

	inst.Flush()
	assert.Len(t, inst.MemoryAdapter().All(), 1)
}

func TestQueryRowsContext_ReplayModeNeverHitsRealDB(t *testing.T) {
	query := "SELECT id, name FROM users WHERE id = ?"
	in := queryInput{Query: query, Args: []interface{}{float64(1)}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	res, err := schema.GenerateSchemaAndHash(decoded, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    `{"columns":["id","name"],"rows":[[1,"Mocked"]]}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	db := &DB{Raw: nil, Inst: inst, PackageName: "fakesql", InstrumentationName: "x", PackageType: tdcontext.PackagePostgres}

	cols, rows, err := db.QueryRowsContext(context.Background(), query, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
	assert.Equal(t, [][]interface{}{{float64(1), "Mocked"}}, rows)
}

func TestQueryRowsContext_ReplayModeNoMatchReturnsError(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	db := &DB{Raw: nil, Inst: inst, PackageName: "fakesql", InstrumentationName: "x", PackageType: tdcontext.PackagePostgres}

	_, _, err := db.QueryRowsContext(context.Background(), "SELECT * FROM unmocked")
	assert.Error(t, err)
}

func TestExecContext_RecordModeRunsRealStatement(t *testing.T) {
	inst := startInstance(t, mode.Record, nil)
	db := newDB(t, inst)

	lastID, affected, err := db.ExecContext(context.Background(), "INSERT INTO users (name) VALUES (?)", "Ann")
	require.NoError(t, err)
	assert.Equal(t, int64(7), lastID)
	assert.Equal(t, int64(1), affected)
}

func TestExecContext_ReplayModeNeverHitsRealDB(t *testing.T) {
	query := "INSERT INTO users (name) VALUES (?)"
	in := queryInput{Query: query, Args: []interface{}{"Ann"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	res, err := schema.GenerateSchemaAndHash(decoded, nil)
	require.NoError(t, err)

	store := mock.NewStore()
	store.LoadGlobal([]*mock.StoredSpan{{
		InputValueHash: res.DecodedValueHash,
		OutputValue:    `{"lastInsertId":42,"rowsAffected":1}`,
		Timestamp:      time.Unix(1, 0),
	}})
	inst := startInstance(t, mode.Replay, store)
	db := &DB{Raw: nil, Inst: inst, PackageName: "fakesql", InstrumentationName: "x", PackageType: tdcontext.PackagePostgres}

	lastID, affected, err := db.ExecContext(context.Background(), query, "Ann")
	require.NoError(t, err)
	assert.Equal(t, int64(42), lastID)
	assert.Equal(t, int64(1), affected)
}

func TestQueryContext_ReplayModeIsUnsupported(t *testing.T) {
	inst := startInstance(t, mode.Replay, nil)
	db := &DB{Raw: nil, Inst: inst, PackageName: "fakesql", InstrumentationName: "x", PackageType: tdcontext.PackagePostgres}

	_, err := db.QueryContext(context.Background(), "SELECT 1")
	assert.Error(t, err)
}
