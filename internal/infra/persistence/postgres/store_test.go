package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"statefacts/internal/infra/persistence/postgres/testutil"
	"statefacts/internal/infra/persistence/storetest"
	"statefacts/pkg/domain"
)

// stubStore opens a Store on the in-memory stub driver.
func stubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver string
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		gotDriver = driverName
		return db, nil
	})
	t.Cleanup(restore)
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if gotDriver != defaultDriver {
		t.Fatalf("expected driver %s, got %s", defaultDriver, gotDriver)
	}
	return s, conn
}

func TestStoreContractOnStub(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.FactStore {
		s, _ := stubStore(t)
		return s
	})
}

func TestStoreContractOnPostgres(t *testing.T) {
	dsn := os.Getenv("STATEFACTS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STATEFACTS_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) domain.FactStore {
		s, err := NewStore(context.Background(), dsn)
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		if _, err := s.DB().Exec(`TRUNCATE TABLE fun_facts`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := stubStore(t)
	stmts := conn.Statements()
	if len(stmts) == 0 || !strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS fun_facts") {
		t.Fatalf("expected schema statement first, got %v", stmts)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("dial fail") })
	if _, err := NewStore(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
	restore()

	db, conn = testutil.NewStubDB()
	conn.FailOn = "CREATE TABLE"
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestMutationFailuresLeaveDocumentUnchanged(t *testing.T) {
	s, conn := stubStore(t)
	ctx := context.Background()
	before, err := s.AppendDistinct(ctx, "TX", []string{"a"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	conn.FailOn = "UPDATE fun_facts"
	if _, err := s.AppendDistinct(ctx, "TX", []string{"b"}); err == nil {
		t.Fatalf("expected update failure")
	}
	conn.FailOn = ""
	conn.FailCommit = true
	if _, err := s.DeleteAt(ctx, "TX", 1); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false

	after, found, err := s.Get(ctx, "TX")
	if err != nil || !found {
		t.Fatalf("get: %v %v", found, err)
	}
	if after.Version != before.Version || len(after.Facts) != 1 || after.Facts[0] != "a" {
		t.Fatalf("failed writes leaked into the document: %+v", after)
	}

	conn.FailBegin = true
	if _, err := s.ReplaceAt(ctx, "TX", 1, "x"); err == nil {
		t.Fatalf("expected begin failure")
	}
}
