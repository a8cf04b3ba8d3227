package sqlclient

import (
	"context"
	"errors"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestIsTransientSQLServer(t *testing.T) {
	if !IsTransient(DialectSQLServer, mssql.Error{Number: 40613}) {
		t.Fatalf("expected SQL Server error 40613 to be transient")
	}
	if IsTransient(DialectSQLServer, mssql.Error{Number: 50000}) {
		t.Fatalf("expected SQL Server error 50000 to be non-transient")
	}
	if !IsTransient(DialectSQLServer, errors.New("dial tcp: connection refused")) {
		t.Fatalf("expected a connection-phrased error to be transient")
	}
}

func TestIsTransientMySQL(t *testing.T) {
	if !IsTransient(DialectMySQL, &mysql.MySQLError{Number: 1213}) {
		t.Fatalf("expected MySQL deadlock error 1213 to be transient")
	}
	if IsTransient(DialectMySQL, &mysql.MySQLError{Number: 1062}) {
		t.Fatalf("expected MySQL duplicate-key error 1062 to be non-transient")
	}
}

func TestIsTransientPostgres(t *testing.T) {
	if !IsTransient(DialectPostgres, &pq.Error{Code: "40001"}) {
		t.Fatalf("expected Postgres serialization_failure to be transient")
	}
	if IsTransient(DialectPostgres, &pq.Error{Code: "23505"}) {
		t.Fatalf("expected Postgres unique_violation to be non-transient")
	}
}

func TestIsTransientNilAndUnknownDialect(t *testing.T) {
	if IsTransient(DialectPostgres, nil) {
		t.Fatalf("expected nil error to never be transient")
	}
	if IsTransient(Dialect("oracle"), errors.New("boom")) {
		t.Fatalf("expected an unrecognised dialect to never be treated as transient")
	}
}

func TestFormatArgPlaceholder(t *testing.T) {
	cases := []struct {
		dialect Dialect
		want    string
	}{
		{DialectPostgres, "$2"},
		{DialectSQLServer, "@p2"},
		{DialectMySQL, "?"},
	}
	for _, c := range cases {
		if got := FormatArgPlaceholder(c.dialect, 2); got != c.want {
			t.Fatalf("FormatArgPlaceholder(%s, 2) = %q, want %q", c.dialect, got, c.want)
		}
	}
}

type fakeClient struct {
	errs  []error
	calls int
}

func (f *fakeClient) Query(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return []Row{{"ok": true}}, nil
}
func (f *fakeClient) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, nil
}
func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                   { return nil }

func TestQueryWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	client := &fakeClient{errs: []error{&pq.Error{Code: "40001"}, nil}}

	rows, err := queryWithRetryFastBackoff(t, client, DialectPostgres, 1)
	if err != nil {
		t.Fatalf("QueryWithRetry: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row back, got %d", len(rows))
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", client.calls)
	}
}

func TestQueryWithRetryGivesUpOnNonTransientError(t *testing.T) {
	client := &fakeClient{errs: []error{&pq.Error{Code: "23505"}}}
	_, err := QueryWithRetry(t.Context(), client, DialectPostgres, 2, "select 1")
	if err == nil {
		t.Fatalf("expected a non-transient error to return immediately")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one attempt for a non-transient error, got %d", client.calls)
	}
}

func TestQueryWithRetryExhaustsRetries(t *testing.T) {
	transient := &pq.Error{Code: "40001"}
	client := &fakeClient{errs: []error{transient, transient, transient}}
	_, err := QueryWithRetry(t.Context(), client, DialectPostgres, 1, "select 1")
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	if client.calls != 2 {
		t.Fatalf("expected maxRetries+1 = 2 attempts, got %d", client.calls)
	}
}

// queryWithRetryFastBackoff runs QueryWithRetry with a single transient
// failure, so the real 2s backoff is paid once rather than compounding.
func queryWithRetryFastBackoff(t *testing.T, client Client, dialect Dialect, maxRetries int) ([]Row, error) {
	t.Helper()
	return QueryWithRetry(t.Context(), client, dialect, maxRetries, "select 1")
}

func TestAppendApplicationNameHelpers(t *testing.T) {
	if got := appendApplicationNameMySQL("tcp(host)/db"); got != "tcp(host)/db?connectionAttributes=program_name:Reef" {
		t.Fatalf("appendApplicationNameMySQL = %q", got)
	}
	if got := appendApplicationNameMySQL("tcp(host)/db?connectionAttributes=x"); got != "tcp(host)/db?connectionAttributes=x" {
		t.Fatalf("expected existing connectionAttributes to be left alone, got %q", got)
	}

	if got := appendApplicationNamePostgres("postgres://u:p@host/db"); got != "postgres://u:p@host/db?application_name=Reef" {
		t.Fatalf("appendApplicationNamePostgres = %q", got)
	}
	if got := appendApplicationNamePostgres("host=localhost dbname=db"); got != "host=localhost dbname=db application_name=Reef" {
		t.Fatalf("appendApplicationNamePostgres (keyword form) = %q", got)
	}

	if got := appendApplicationNameSQLServer("sqlserver://host?database=db"); got != "sqlserver://host?database=db&app name=Reef" {
		t.Fatalf("appendApplicationNameSQLServer = %q", got)
	}
	if got := appendApplicationNameSQLServer("sqlserver://host?app name=Existing"); got != "sqlserver://host?app name=Existing" {
		t.Fatalf("expected existing app name= to be left alone, got %q", got)
	}
}
