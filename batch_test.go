package ppg

import (
	"context"
	"errors"
	"testing"

	"github.com/prisma/ppg-go/wire"
)

func TestSendBatch(t *testing.T) {
	f := newFakeEndpoint(t)
	f.script("SELECT name FROM users", fakeResult{
		columns: []wire.Column{{Name: "name", OID: 25}},
		rows:    [][]*string{{strptr("ada")}, {strptr("grace")}},
	})
	f.script("DELETE FROM sessions", fakeResult{affected: "9"})

	client := newTestClient(t, f)
	batch := NewBatch().
		Query("SELECT name FROM users").
		Exec("DELETE FROM sessions")

	results, err := client.SendBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}

	if len(results[0].Rows) != 2 || results[0].Rows[0][0] != "ada" {
		t.Errorf("query result: got %+v", results[0].Rows)
	}
	if len(results[0].Columns) != 1 || results[0].Columns[0].Name != "name" {
		t.Errorf("query columns: got %+v", results[0].Columns)
	}
	if results[1].RowsAffected != 9 {
		t.Errorf("exec result: got %d, want 9", results[1].RowsAffected)
	}

	want := []string{"BEGIN", "SELECT name FROM users", "DELETE FROM sessions", "COMMIT"}
	assertSQLLog(t, f.executed(), want)
}

func TestSendBatchArrayForm(t *testing.T) {
	f := newFakeEndpoint(t)
	f.script("UPDATE a SET x=1", fakeResult{affected: "1"})
	f.script("UPDATE b SET y=2", fakeResult{affected: "2"})

	client := newTestClient(t, f)
	batch := NewBatch(
		BatchExec("UPDATE a SET x=1"),
		BatchExec("UPDATE b SET y=2"),
	)

	results, err := client.SendBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if results[0].RowsAffected != 1 || results[1].RowsAffected != 2 {
		t.Errorf("results out of order: %+v", results)
	}
}

func TestSendBatchEmpty(t *testing.T) {
	f := newFakeEndpoint(t)
	client := newTestClient(t, f)

	results, err := client.SendBatch(context.Background(), NewBatch())
	if err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results: got %d, want 0", len(results))
	}

	// An empty batch still opens and commits a transaction.
	assertSQLLog(t, f.executed(), []string{"BEGIN", "COMMIT"})
}

func TestSendBatchRollsBackOnError(t *testing.T) {
	f := newFakeEndpoint(t)
	f.script("UPDATE a SET x=1", fakeResult{affected: "1"})
	f.script("SELECT broken", fakeResult{errFrame: `{"message":"no such column","code":"42703"}`})

	client := newTestClient(t, f)
	batch := NewBatch().
		Exec("UPDATE a SET x=1").
		Query("SELECT broken")

	_, err := client.SendBatch(context.Background(), batch)
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) || dbErr.Code != "42703" {
		t.Fatalf("got %v, want DatabaseError 42703", err)
	}

	log := f.executed()
	if len(log) == 0 || log[len(log)-1] != "ROLLBACK" {
		t.Errorf("last statement: got %v, want trailing ROLLBACK", log)
	}
	for _, sql := range log {
		if sql == "COMMIT" {
			t.Error("failed batch must not commit")
		}
	}
}
