package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/kit"
)

func setupLogger(t *testing.T, opts ...Option) (*SQLiteLogger, *sql.DB) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	l := NewSQLiteLogger(db, opts...)
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, db
}

func TestInit_CreatesTable(t *testing.T) {
	_, db := setupLogger(t)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='audit_log'").Scan(&count)
	if count != 1 {
		t.Fatal("audit_log table not created")
	}
}

func TestLog_FillsDefaults(t *testing.T) {
	l, db := setupLogger(t)

	entry := &Entry{Action: "create_page", Parameters: `{"url":"https://example.com"}`}
	if err := l.Log(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if entry.EntryID == "" || entry.Timestamp == 0 {
		t.Fatalf("defaults not filled: %+v", entry)
	}
	if entry.Status != StatusSuccess || entry.Transport != kit.TransportHTTP {
		t.Fatalf("status=%q transport=%q", entry.Status, entry.Transport)
	}

	var action string
	db.QueryRow("SELECT action FROM audit_log WHERE entry_id = ?", entry.EntryID).Scan(&action)
	if action != "create_page" {
		t.Fatalf("DB action: got %q", action)
	}
}

func TestLog_ErrorStatus(t *testing.T) {
	l, _ := setupLogger(t)

	entry := &Entry{Action: "capture", Error: "http 503"}
	l.Log(context.Background(), entry)
	if entry.Status != StatusError {
		t.Fatalf("status: got %q", entry.Status)
	}
}

func TestWithIDGenerator(t *testing.T) {
	l, _ := setupLogger(t, WithIDGenerator(func() string { return "custom_id" }))

	entry := &Entry{Action: "custom_gen"}
	l.Log(context.Background(), entry)
	if entry.EntryID != "custom_id" {
		t.Fatalf("custom ID: got %q", entry.EntryID)
	}
}

func TestLogAsync_CloseFlushes(t *testing.T) {
	l, db := setupLogger(t, WithBatch(32, time.Hour))

	for i := 0; i < 50; i++ {
		l.LogAsync(&Entry{Action: "batch_test"})
	}
	l.Close()
	l.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action='batch_test'").Scan(&count)
	if count != 50 {
		t.Fatalf("batch count: got %d, want 50", count)
	}

	// Dropped after close, no panic.
	l.LogAsync(&Entry{Action: "late"})
}

func TestLogAsync_IntervalFlush(t *testing.T) {
	l, _ := setupLogger(t, WithBatch(32, 10*time.Millisecond))
	l.LogAsync(&Entry{Action: "tick"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		list, err := l.List(context.Background(), "tick", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestList(t *testing.T) {
	l, _ := setupLogger(t)
	ctx := context.Background()
	for i, action := range []string{"a", "b", "a"} {
		l.Log(ctx, &Entry{Action: action, Timestamp: int64(1000 + i)})
	}

	all, err := l.List(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Timestamp != 1002 {
		t.Errorf("all = %+v", all)
	}
	onlyA, _ := l.List(ctx, "a", 10)
	if len(onlyA) != 2 {
		t.Errorf("a = %d entries, want 2", len(onlyA))
	}
}

func TestMiddleware_Success(t *testing.T) {
	l, db := setupLogger(t)

	base := func(ctx context.Context, req any) (any, error) {
		return "result", nil
	}
	endpoint := Middleware(l, "annotate_change")(base)

	ctx := kit.WithUser(context.Background(), "ana")
	ctx = kit.WithTransport(ctx, kit.TransportMCP)
	ctx = kit.WithRequestID(ctx, "req_abc")

	resp, err := endpoint(ctx, map[string]string{"page_id": "p1"})
	if err != nil || resp != "result" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	l.Close()

	var userID, transport, requestID, params, status string
	db.QueryRow("SELECT user_id, transport, request_id, parameters, status FROM audit_log WHERE action='annotate_change'").
		Scan(&userID, &transport, &requestID, &params, &status)
	if userID != "ana" || transport != "mcp" || requestID != "req_abc" || status != StatusSuccess {
		t.Fatalf("row = %q %q %q %q", userID, transport, requestID, status)
	}
	if params != `{"page_id":"p1"}` {
		t.Fatalf("parameters = %s", params)
	}
}

func TestMiddleware_Error(t *testing.T) {
	l, db := setupLogger(t)

	errFail := errors.New("endpoint failed")
	endpoint := Middleware(l, "fail_op")(func(ctx context.Context, req any) (any, error) {
		return nil, errFail
	})

	if _, err := endpoint(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
	l.Close()

	var status, errMsg string
	db.QueryRow("SELECT status, error_message FROM audit_log WHERE action='fail_op'").Scan(&status, &errMsg)
	if status != StatusError || errMsg != "endpoint failed" {
		t.Fatalf("status=%q error=%q", status, errMsg)
	}
}
