package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/changeview/dbopen"
)

const countQuery = `SELECT COUNT(*) FROM versions`

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE versions (id INTEGER PRIMARY KEY, captured_at INTEGER)`))
}

func insert(t *testing.T, db *sql.DB, capturedAt int64) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO versions (captured_at) VALUES (?)`, capturedAt); err != nil {
		t.Fatal(err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func start(t *testing.T, w *Watcher, action func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, action)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	eventually(t, "first poll", func() bool { return w.Stats().Checks > 0 })
}

func TestMaxColumnDetector(t *testing.T) {
	db := testDB(t)
	det := MaxColumnDetector("versions", "captured_at")

	v, err := det(context.Background(), db)
	if err != nil || v != 0 {
		t.Fatalf("empty table: %d, %v", v, err)
	}
	insert(t, db, 1700000000)
	insert(t, db, 1600000000)
	if v, _ := det(context.Background(), db); v != 1700000000 {
		t.Fatalf("max = %d, want 1700000000", v)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`ver"sions`); got != `"ver""sions"` {
		t.Fatalf("quoteIdent = %s", got)
	}
}

func TestOnChange_RunsOncePerChange(t *testing.T) {
	db := testDB(t)
	var runs atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: QueryDetector(countQuery)})
	start(t, w, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	insert(t, db, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.WaitForVersion(ctx, 1); err != nil {
		t.Fatal(err)
	}
	insert(t, db, 2)
	if err := w.WaitForVersion(ctx, 2); err != nil {
		t.Fatal(err)
	}

	checks := w.Stats().Checks
	eventually(t, "more polls", func() bool { return w.Stats().Checks > checks+3 })
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestOnChange_Debounce(t *testing.T) {
	db := testDB(t)
	var runs atomic.Int32
	w := New(db, Options{
		Interval: 10 * time.Millisecond,
		Debounce: 150 * time.Millisecond,
		Detector: QueryDetector(countQuery),
	})
	start(t, w, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	for i := int64(1); i <= 4; i++ {
		insert(t, db, i)
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.WaitForVersion(ctx, 4); err != nil {
		t.Fatal(err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 debounced run", got)
	}
}

func TestOnChange_FailedActionRetried(t *testing.T) {
	db := testDB(t)
	var calls atomic.Int32
	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: QueryDetector(countQuery)})
	start(t, w, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("reload failed")
		}
		return nil
	})

	insert(t, db, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.WaitForVersion(ctx, 1); err != nil {
		t.Fatal(err)
	}

	s := w.Stats()
	if calls.Load() != 2 || s.Errors != 1 || s.Reloads != 1 {
		t.Fatalf("calls = %d stats = %+v", calls.Load(), s)
	}
}

func TestWaitForVersion_ContextDone(t *testing.T) {
	w := New(testDB(t), Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.WaitForVersion(ctx, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
