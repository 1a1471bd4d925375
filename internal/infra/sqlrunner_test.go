package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const markedSelect = `--sql 0b7a4c5e-52f1-4b8e-9d0c-3f6a1e2d4c5b
select 1;
`

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker(markedSelect)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "0b7a4c5e-52f1-4b8e-9d0c-3f6a1e2d4c5b" {
		t.Fatalf("marker mismatch: got %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body mismatch: got %q", body)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	cases := []struct {
		query string
		want  error
	}{
		{query: "", want: errEmptyQuery},
		{query: "select 1;", want: errMissingMarker},
		{query: "--sql not-a-uuid\nselect 1;", want: errMissingMarker},
	}
	for _, tc := range cases {
		if _, _, err := extractMarker(tc.query); !errors.Is(err, tc.want) {
			t.Fatalf("extractMarker(%q) error = %v, want %v", tc.query, err, tc.want)
		}
	}
}

type recordingDB struct {
	lastQuery string
	execErr   error
	rowErr    error
	rows      *emptyRows
}

func (d *recordingDB) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	d.lastQuery = query
	return pgconn.NewCommandTag("UPDATE 1"), d.execErr
}

func (d *recordingDB) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	d.lastQuery = query
	return errorRow{err: d.rowErr}
}

func (d *recordingDB) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	d.lastQuery = query
	return d.rows, nil
}

type emptyRows struct{ closes int }

func (r *emptyRows) Close()                                       { r.closes++ }
func (r *emptyRows) Err() error                                   { return nil }
func (r *emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *emptyRows) Next() bool                                   { return false }
func (r *emptyRows) Scan(...any) error                            { return nil }
func (r *emptyRows) Values() ([]any, error)                       { return nil, nil }
func (r *emptyRows) RawValues() [][]byte                          { return nil }
func (r *emptyRows) Conn() *pgx.Conn                              { return nil }

func TestSQLRunnerStripsMarker(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, zerolog.Nop())

	tag, err := runner.Exec(context.Background(), markedSelect)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("rows affected = %d", tag.RowsAffected())
	}
	if db.lastQuery != "select 1;" {
		t.Fatalf("statement sent to db = %q", db.lastQuery)
	}
}

func TestSQLRunnerRefusesUnmarkedStatements(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "delete from generation_batches"); !errors.Is(err, errMissingMarker) {
		t.Fatalf("Exec error = %v", err)
	}
	if err := runner.QueryRow(context.Background(), "select 1").Scan(); !errors.Is(err, errMissingMarker) {
		t.Fatalf("QueryRow error = %v", err)
	}
	if db.lastQuery != "" {
		t.Fatalf("unmarked statement reached the db: %q", db.lastQuery)
	}
}

func TestSQLRunnerPassesThroughErrors(t *testing.T) {
	boom := errors.New("connection reset")
	db := &recordingDB{execErr: boom, rowErr: pgx.ErrNoRows}
	runner := NewSQLRunner(db, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), markedSelect); !errors.Is(err, boom) {
		t.Fatalf("Exec error = %v", err)
	}
	if err := runner.QueryRow(context.Background(), markedSelect).Scan(); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("QueryRow error = %v", err)
	}
}

func TestSQLRunnerRowsCloseOnce(t *testing.T) {
	db := &recordingDB{rows: &emptyRows{}}
	runner := NewSQLRunner(db, zerolog.Nop())

	rows, err := runner.Query(context.Background(), markedSelect)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for rows.Next() {
	}
	rows.Close()
	rows.Close()
	if db.rows.closes != 2 {
		t.Fatalf("underlying Close calls = %d", db.rows.closes)
	}
}
