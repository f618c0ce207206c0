package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubConnInsertUpdateSelect(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	insert := "INSERT INTO fun_facts(state_code, facts) VALUES($1, $2) ON CONFLICT(state_code) DO NOTHING"
	for _, facts := range []string{`["a"]`, `["ignored"]`} {
		if _, err := conn.ExecContext(ctx, insert, []driver.NamedValue{{Ordinal: 1, Value: "TX"}, {Ordinal: 2, Value: facts}}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if rows := conn.Rows("fun_facts"); len(rows) != 1 || rows[0]["facts"] != `["a"]` {
		t.Fatalf("expected conflicting insert to be ignored, got %v", rows)
	}

	if _, err := conn.ExecContext(ctx, "UPDATE fun_facts SET facts = $1::jsonb WHERE state_code = $2",
		[]driver.NamedValue{{Ordinal: 1, Value: `["b"]`}, {Ordinal: 2, Value: "TX"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := conn.QueryContext(ctx, "SELECT state_code, facts FROM fun_facts WHERE state_code = $1 FOR UPDATE", []driver.NamedValue{{Ordinal: 1, Value: "TX"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("next: %v", err)
	}
	if dest[0] != "TX" || dest[1] != `["b"]` {
		t.Fatalf("unexpected row %v", dest)
	}
	if len(conn.Statements()) != 4 {
		t.Fatalf("expected 4 recorded statements, got %d", len(conn.Statements()))
	}
}

func TestStubTxRollbackRestoresTables(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO fun_facts(state_code) VALUES($1)", []driver.NamedValue{{Ordinal: 1, Value: "TX"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rows := conn.Rows("fun_facts"); len(rows) != 0 {
		t.Fatalf("expected rollback to discard insert, got %v", rows)
	}
}
