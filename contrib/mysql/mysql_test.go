package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// sql.Open never dials for go-sql-driver/mysql; the DSN is only parsed
// and the connection established lazily on first use, so Open here
// never needs a real server.
func TestOpen_ReturnsInstrumentedDBWithoutDialing(t *testing.T) {
	inst, err := driftsdk.Start(func(c *driftsdk.Config) { c.Mode = mode.Disabled })
	require.NoError(t, err)
	t.Cleanup(inst.Stop)

	db, err := Open("user:pass@tcp(127.0.0.1:3306)/testdb", inst)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.NotNil(t, db.Raw)
	assert.Equal(t, inst, db.Inst)
	assert.Equal(t, "mysql", db.PackageName)
	assert.Equal(t, "contrib/mysql", db.InstrumentationName)
	assert.Equal(t, tdcontext.PackageMySQL, db.PackageType)
}
