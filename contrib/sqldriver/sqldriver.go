// Package sqldriver is the shared record/replay wrapper the concrete
// database/sql drivers (contrib/postgres, contrib/mysql) build on.
//
// A traced database/sql.Open registers a wrapped driver.Driver and
// callers use the *Context methods so the active span threads through
// the connection. That shape doesn't fit this SDK's record/replay
// model: in REPLAY mode the real driver must never be invoked at all,
// which a driver.Driver-level proxy can't express since it still
// issues real connections underneath. Wrapping one level higher, at
// *sql.DB's query/exec surface, is what lets HandleReplayMode skip
// the real call entirely.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Use-Tusk/tusk-drift-go-sdk/driftsdk"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/mode"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/tdcontext"
)

// DB wraps a real *sql.DB with record/replay instrumentation. Built by
// contrib/postgres.Open / contrib/mysql.Open rather than directly.
type DB struct {
	Raw                 *sql.DB
	Inst                *driftsdk.Instance
	PackageName         string
	InstrumentationName string
	PackageType         tdcontext.PackageType
}

type queryInput struct {
	Query string        `json:"query"`
	Args  []interface{} `json:"args,omitempty"`
}

type rowsResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

type execResult struct {
	LastInsertID int64 `json:"lastInsertId,omitempty"`
	RowsAffected int64 `json:"rowsAffected"`
}

func (d *DB) spanOpts(name string, q queryInput) (tdcontext.StartSpanOptions, error) {
	in, err := json.Marshal(q)
	if err != nil {
		return tdcontext.StartSpanOptions{}, fmt.Errorf("sqldriver: marshal input: %w", err)
	}
	return tdcontext.StartSpanOptions{
		Name:                name,
		PackageName:         d.PackageName,
		InstrumentationName: d.InstrumentationName,
		PackageType:         d.PackageType,
		Kind:                tdcontext.KindClient,
		InputValue:          string(in),
	}, nil
}

// QueryContext runs query in RECORD mode (recording the row set) or
// resolves it against a mock in REPLAY mode (never touching Raw).
func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	opts, err := d.spanOpts(d.PackageName+".query", queryInput{Query: query, Args: args})
	if err != nil {
		return nil, err
	}

	if d.Inst.Mode() == mode.Replay {
		_, resp, found, err := d.Inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("sqldriver: no recorded mock for query %q", query)
		}
		// REPLAY callers that need typed rows use QueryRowsContext
		// instead; QueryContext's *sql.Rows return can't be fabricated
		// without a real driver.Rows, so this path is RECORD-only for
		// callers needing the stdlib type. Prefer QueryRowsContext.
		_ = resp
		return nil, fmt.Errorf("sqldriver: QueryContext is unsupported in REPLAY mode, use QueryRowsContext")
	}

	_, _, err = d.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		rows, qErr := d.Raw.QueryContext(rctx, query, args...)
		if qErr != nil {
			return "", qErr
		}
		defer rows.Close()
		res, cErr := captureRows(rows)
		if cErr != nil {
			return "", cErr
		}
		out, _ := json.Marshal(res)
		return string(out), nil
	})
	if err != nil {
		return nil, err
	}
	return d.Raw.QueryContext(ctx, query, args...)
}

// QueryRowsContext is the replay-safe query path: it returns captured
// column/row data directly instead of a live *sql.Rows, so REPLAY mode
// can fabricate a result from a mock without a real driver.Rows.
func (d *DB) QueryRowsContext(ctx context.Context, query string, args ...interface{}) (columns []string, rows [][]interface{}, err error) {
	opts, err := d.spanOpts(d.PackageName+".query", queryInput{Query: query, Args: args})
	if err != nil {
		return nil, nil, err
	}

	if d.Inst.Mode() == mode.Replay {
		_, resp, found, err := d.Inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			return nil, nil, fmt.Errorf("sqldriver: no recorded mock for query %q", query)
		}
		var res rowsResult
		if err := json.Unmarshal([]byte(resp.OutputValue), &res); err != nil {
			return nil, nil, fmt.Errorf("sqldriver: decode mocked rows: %w", err)
		}
		return res.Columns, res.Rows, nil
	}

	var res rowsResult
	_, _, err = d.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		sqlRows, qErr := d.Raw.QueryContext(rctx, query, args...)
		if qErr != nil {
			return "", qErr
		}
		defer sqlRows.Close()
		var cErr error
		res, cErr = captureRows(sqlRows)
		if cErr != nil {
			return "", cErr
		}
		out, _ := json.Marshal(res)
		return string(out), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.Columns, res.Rows, nil
}

// ExecContext runs a mutating statement, recording or replaying
// LastInsertId/RowsAffected.
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (lastInsertID, rowsAffected int64, err error) {
	opts, err := d.spanOpts(d.PackageName+".exec", queryInput{Query: query, Args: args})
	if err != nil {
		return 0, 0, err
	}

	if d.Inst.Mode() == mode.Replay {
		_, resp, found, err := d.Inst.HandleReplayMode(ctx, opts)
		if err != nil {
			return 0, 0, err
		}
		if !found {
			return 0, 0, fmt.Errorf("sqldriver: no recorded mock for exec %q", query)
		}
		var res execResult
		if err := json.Unmarshal([]byte(resp.OutputValue), &res); err != nil {
			return 0, 0, fmt.Errorf("sqldriver: decode mocked exec result: %w", err)
		}
		return res.LastInsertID, res.RowsAffected, nil
	}

	var res execResult
	_, _, err = d.Inst.HandleRecordMode(ctx, opts, func(rctx context.Context) (string, error) {
		result, eErr := d.Raw.ExecContext(rctx, query, args...)
		if eErr != nil {
			return "", eErr
		}
		res.LastInsertID, _ = result.LastInsertId()
		res.RowsAffected, _ = result.RowsAffected()
		out, _ := json.Marshal(res)
		return string(out), nil
	})
	if err != nil {
		return 0, 0, err
	}
	return res.LastInsertID, res.RowsAffected, nil
}

// Close closes the underlying *sql.DB.
func (d *DB) Close() error { return d.Raw.Close() }

func captureRows(rows *sql.Rows) (rowsResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return rowsResult{}, err
	}
	res := rowsResult{Columns: cols}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return rowsResult{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}
