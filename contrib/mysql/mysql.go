// Package mysql wires go-sql-driver/mysql into contrib/sqldriver, the
// SDK's record/replay query wrapper.
package mysql

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/Use-Tusk/tusk-drift-go-sdk/contrib/sqldriver"
	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// Open connects to dsn (go-sql-driver/mysql DSN syntax) and returns a
// record/replay-instrumented DB.
func Open(dsn string, inst *driftsdk.Instance) (*sqldriver.DB, error) {
	raw, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &sqldriver.DB{
		Raw:                 raw,
		Inst:                inst,
		PackageName:         "mysql",
		InstrumentationName: "contrib/mysql",
		PackageType:         tdcontext.PackageMySQL,
	}, nil
}
