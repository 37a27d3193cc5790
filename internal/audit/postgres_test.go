package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeAuditDB records statements and serves stored events back as rows.
type fakeAuditDB struct {
	execs  []execCall
	stored []Event
	lastQ  execCall
}

func (db *fakeAuditDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (db *fakeAuditDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.lastQ = execCall{sql: sql, args: args}
	return &fakeRows{events: db.stored}, nil
}

type fakeRows struct {
	events []Event
	idx    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.events)
}

func (r *fakeRows) Scan(dest ...any) error {
	ev := r.events[r.idx-1]
	*(dest[0].(*string)) = ev.ID
	*(dest[1].(*string)) = string(ev.Kind)
	*(dest[2].(*string)) = ev.Principal
	*(dest[3].(*string)) = ev.Role
	*(dest[4].(*string)) = ev.Capability
	*(dest[5].(*bool)) = ev.Allowed
	*(dest[6].(*string)) = ev.Reason
	*(dest[7].(*string)) = ev.Account
	*(dest[8].(*string)) = ev.Identity
	*(dest[9].(*int)) = ev.Score
	*(dest[10].(*string)) = ev.Level
	*(dest[11].(*bool)) = ev.PartialData
	*(dest[12].(*time.Time)) = ev.CreatedAt
	return nil
}

func TestPostgresSinkRecord(t *testing.T) {
	db := &fakeAuditDB{}
	sink := NewPostgresSinkWithDB(db)
	defer sink.Close()

	ev := DecisionEvent(testDecision("dec-1", "alice"))
	if err := sink.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(db.execs) != 1 {
		t.Fatalf("got %d exec calls, want 1", len(db.execs))
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "INSERT INTO audit_events") {
		t.Errorf("sql = %q", call.sql)
	}
	if len(call.args) != 13 {
		t.Fatalf("got %d args, want 13", len(call.args))
	}
	if call.args[0] != "dec-1" || call.args[2] != "alice" {
		t.Errorf("args = %v", call.args)
	}
}

func TestPostgresSinkQuery(t *testing.T) {
	db := &fakeAuditDB{stored: []Event{
		DecisionEvent(testDecision("dec-1", "alice")),
		DecisionEvent(testDecision("dec-2", "bob")),
	}}
	sink := NewPostgresSinkWithDB(db)
	defer sink.Close()

	events, err := sink.Query(context.Background(), Filter{Principal: "alice", Limit: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !strings.Contains(db.lastQ.sql, "WHERE principal = $1") {
		t.Errorf("sql = %q, want principal filter", db.lastQ.sql)
	}
	if len(db.lastQ.args) != 2 || db.lastQ.args[0] != "alice" || db.lastQ.args[1] != 5 {
		t.Errorf("args = %v", db.lastQ.args)
	}
	if len(events) != 2 {
		t.Errorf("got %d events", len(events))
	}
	if events[0].ID != "dec-1" || events[0].Kind != KindAccessDecision {
		t.Errorf("scanned event = %+v", events[0])
	}

	if _, err := sink.Query(context.Background(), Filter{}); err != nil {
		t.Fatalf("Query all: %v", err)
	}
	if strings.Contains(db.lastQ.sql, "WHERE") {
		t.Errorf("unfiltered sql = %q", db.lastQ.sql)
	}
	if len(db.lastQ.args) != 1 || db.lastQ.args[0] != 100 {
		t.Errorf("default limit args = %v", db.lastQ.args)
	}
}
