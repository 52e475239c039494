// Package postgres wires jackc/pgx/v5's database/sql stdlib driver
// into contrib/sqldriver, the SDK's record/replay query wrapper.
package postgres

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Use-Tusk/tusk-drift-go-sdk/contrib/sqldriver"
	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// Open connects to dsn via pgx's stdlib driver and returns a
// record/replay-instrumented DB. In REPLAY mode no real connection is
// attempted; Raw is left as a valid *sql.DB handle regardless so
// callers that bypass the instrumented methods still get a usable
// (if unconnected) database/sql object.
func Open(dsn string, inst *driftsdk.Instance) (*sqldriver.DB, error) {
	raw, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &sqldriver.DB{
		Raw:                 raw,
		Inst:                inst,
		PackageName:         "postgres",
		InstrumentationName: "contrib/postgres",
		PackageType:         tdcontext.PackagePostgres,
	}, nil
}
