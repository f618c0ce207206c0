// Package testutil provides a stub database/sql driver understanding the
// small SQL dialect used by the postgres fact store. It keeps rows in memory,
// serializes transactions (standing in for row locks) and restores the
// pre-transaction tables on rollback.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// StubConn records statements and holds the table contents.
type StubConn struct {
	mu     sync.Mutex // guards every field below
	txMu   sync.Mutex // held for the lifetime of a transaction
	Execs  []string
	Tables map[string][]map[string]any

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// FailOn makes any statement containing the substring fail.
	FailOn string
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Rows returns a copy of the rows of table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.Tables[table]))
	for _, r := range c.Tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Statements returns the statements executed so far.
func (c *StubConn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Execs...)
}

type stubDriver struct{ conn *StubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	fail := c.FailBegin
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("begin fail")
	}
	c.txMu.Lock()
	if err := ctx.Err(); err != nil {
		c.txMu.Unlock()
		return nil, err
	}
	c.mu.Lock()
	snapshot := make(map[string][]map[string]any, len(c.Tables))
	for t, rows := range c.Tables {
		for _, r := range rows {
			snapshot[t] = append(snapshot[t], copyRow(r))
		}
	}
	c.mu.Unlock()
	return &stubTx{conn: c, snapshot: snapshot}, nil
}

func (c *StubConn) record(query string) error {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return fmt.Errorf("exec fail")
	}
	if c.FailOn != "" && strings.Contains(query, c.FailOn) {
		return fmt.Errorf("statement fail: %s", c.FailOn)
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(query); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	upper := strings.ToUpper(q)
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		return c.insert(q, args)
	case strings.HasPrefix(upper, "UPDATE"):
		return c.update(q, args)
	default: // DDL
		return driver.RowsAffected(0), nil
	}
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Result, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	key := cols[0]
	for i, existing := range c.Tables[table] {
		if existing[key] != row[key] {
			continue
		}
		if strings.Contains(strings.ToUpper(query), "DO NOTHING") {
			return driver.RowsAffected(0), nil
		}
		c.Tables[table][i] = row
		return driver.RowsAffected(1), nil
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) update(query string, args []driver.NamedValue) (driver.Result, error) {
	// UPDATE <table> SET a = $1, b = $2 WHERE c = $3
	fields := strings.Fields(query)
	if len(fields) < 2 {
		return nil, fmt.Errorf("cannot parse update: %s", query)
	}
	table := strings.ToLower(fields[1])
	upper := strings.ToUpper(query)
	setIdx, whereIdx := strings.Index(upper, " SET "), strings.Index(upper, " WHERE ")
	if setIdx == -1 || whereIdx == -1 || whereIdx < setIdx {
		return nil, fmt.Errorf("cannot parse update: %s", query)
	}
	assignments := map[string]any{}
	for _, part := range strings.Split(query[setIdx+5:whereIdx], ",") {
		col, val, err := parseAssignment(part, args)
		if err != nil {
			return nil, err
		}
		assignments[col] = val
	}
	whereCol, whereVal, err := parseAssignment(query[whereIdx+7:], args)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, row := range c.Tables[table] {
		if row[whereCol] != whereVal {
			continue
		}
		for col, val := range assignments {
			row[col] = val
		}
		n++
	}
	return driver.RowsAffected(n), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(query); err != nil {
		return nil, err
	}
	sel, err := parseSelect(query, args)
	if err != nil {
		return nil, err
	}
	var matched []map[string]any
	for _, row := range c.Tables[sel.table] {
		if sel.whereCol != "" && row[sel.whereCol] != sel.whereVal {
			continue
		}
		matched = append(matched, row)
	}
	if sel.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][sel.orderBy]) < fmt.Sprint(matched[j][sel.orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values}, nil
}

type stubTx struct {
	conn     *StubConn
	snapshot map[string][]map[string]any
	done     bool
}

func (t *stubTx) finish() {
	if !t.done {
		t.done = true
		t.conn.txMu.Unlock()
	}
}

func (t *stubTx) Commit() error {
	defer t.finish()
	t.conn.mu.Lock()
	fail := t.conn.FailCommit
	if fail {
		t.conn.Tables = t.snapshot
	}
	t.conn.mu.Unlock()
	if fail {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error {
	if t.done {
		return nil
	}
	defer t.finish()
	t.conn.mu.Lock()
	t.conn.Tables = t.snapshot
	t.conn.mu.Unlock()
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type selectStmt struct {
	table    string
	cols     []string
	whereCol string
	whereVal any
	orderBy  string
}

// parseSelect understands: SELECT cols FROM table [WHERE col = $n] [ORDER BY col] [FOR UPDATE]
func parseSelect(query string, args []driver.NamedValue) (selectStmt, error) {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	if !strings.HasPrefix(lower, "select ") {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	stmt := selectStmt{cols: splitColumns(q[len("select "):fromIdx])}
	rest := strings.TrimSpace(q[fromIdx+len(" from "):])
	restLower := strings.ToLower(rest)
	if strings.HasSuffix(restLower, " for update") {
		rest = strings.TrimSpace(rest[:len(rest)-len(" for update")])
		restLower = strings.ToLower(rest)
	}
	if i := strings.Index(restLower, " order by "); i != -1 {
		stmt.orderBy = strings.ToLower(strings.TrimSpace(rest[i+len(" order by "):]))
		rest, restLower = rest[:i], restLower[:i]
	}
	if i := strings.Index(restLower, " where "); i != -1 {
		col, val, err := parseAssignment(rest[i+len(" where "):], args)
		if err != nil {
			return selectStmt{}, err
		}
		stmt.whereCol, stmt.whereVal = col, val
		rest = rest[:i]
	}
	stmt.table = strings.ToLower(strings.TrimSpace(rest))
	return stmt, nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

// parseAssignment resolves `col = $n[::type]` against args.
func parseAssignment(expr string, args []driver.NamedValue) (string, any, error) {
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("cannot parse predicate %q", expr)
	}
	col := strings.ToLower(strings.TrimSpace(parts[0]))
	ref := strings.TrimSpace(parts[1])
	if i := strings.Index(ref, "::"); i != -1 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "$"))
	if err != nil || n < 1 || n > len(args) {
		return "", nil, fmt.Errorf("bad placeholder %q", ref)
	}
	return col, args[n-1].Value, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}

func copyRow(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
