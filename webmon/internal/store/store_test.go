package store

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/changeview/dbopen"
	"github.com/hazyhaar/changeview/page"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return &Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(Schema))}
}

func seedPage(t *testing.T, s *Store, id, title string, captures ...int64) {
	t.Helper()
	ctx := context.Background()
	if err := s.InsertPage(ctx, &page.Page{UUID: id, Title: title, URL: "https://example.com/" + id}); err != nil {
		t.Fatalf("insert page: %v", err)
	}
	for i, sec := range captures {
		v := &page.Version{
			UUID:        id + "-v" + string(rune('1'+i)),
			PageUUID:    id,
			CapturedAt:  time.Unix(sec, 0),
			Title:       title,
			ContentHash: "hash-" + string(rune('a'+i)),
			StatusCode:  200,
			Source:      "http",
		}
		if err := s.InsertVersion(ctx, v, Content{HTML: "<p>" + v.UUID + "</p>", Markdown: v.UUID}); err != nil {
			t.Fatalf("insert version: %v", err)
		}
	}
}

func TestPageCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedPage(t, s, "p1", "Pricing", 10, 30, 20)

	got, err := s.GetPage(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "Pricing" || got.URL != "https://example.com/p1" {
		t.Fatalf("page = %+v", got)
	}
	want := []string{"p1-v2", "p1-v3", "p1-v1"}
	if len(got.Versions) != len(want) {
		t.Fatalf("versions = %d, want %d", len(got.Versions), len(want))
	}
	for i, id := range want {
		if got.Versions[i].UUID != id {
			t.Errorf("versions[%d] = %s, want %s", i, got.Versions[i].UUID, id)
		}
	}
	if !got.Versions[0].CapturedAt.Equal(time.Unix(30, 0)) {
		t.Errorf("captured_at = %v", got.Versions[0].CapturedAt)
	}

	missing, err := s.GetPage(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing page = %v, %v; want nil, nil", missing, err)
	}
}

func TestListPages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedPage(t, s, "c", "Charlie", 5)
	seedPage(t, s, "a", "Alpha")
	seedPage(t, s, "b", "Bravo", 1, 2)

	pages, err := s.ListPages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 || pages[0].UUID != "a" || pages[1].UUID != "b" || pages[2].UUID != "c" {
		t.Fatalf("order = %v", pages)
	}
	if pages[1].Versions != nil {
		t.Error("ListPages attached versions")
	}

	full, err := s.ListPagesWithVersions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(full[0].Versions) != 0 || len(full[1].Versions) != 2 || len(full[2].Versions) != 1 {
		t.Fatalf("version counts wrong: %d %d %d", len(full[0].Versions), len(full[1].Versions), len(full[2].Versions))
	}
	if full[1].Versions[0].UUID != "b-v2" {
		t.Errorf("bravo latest = %s, want b-v2", full[1].Versions[0].UUID)
	}
}

func TestLatestVersionAndContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedPage(t, s, "p1", "Pricing", 10, 20)

	v, err := s.LatestVersion(ctx, "p1")
	if err != nil || v == nil || v.UUID != "p1-v2" || v.ContentHash != "hash-b" {
		t.Fatalf("latest = %+v, %v", v, err)
	}
	if v, err := s.LatestVersion(ctx, "none"); err != nil || v != nil {
		t.Fatalf("latest of unknown = %v, %v", v, err)
	}

	c, err := s.GetContent(ctx, "p1-v1")
	if err != nil || c == nil || c.HTML != "<p>p1-v1</p>" || c.Markdown != "p1-v1" {
		t.Fatalf("content = %+v, %v", c, err)
	}

	n, err := s.CountVersions(ctx, "p1")
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestInsertVersion_UnknownPage(t *testing.T) {
	s := testStore(t)
	v := &page.Version{UUID: "v1", PageUUID: "ghost", CapturedAt: time.Now()}
	if err := s.InsertVersion(context.Background(), v, Content{}); err == nil {
		t.Fatal("expected foreign key error")
	}
}

func TestAnnotations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedPage(t, s, "p1", "Pricing", 10, 20)

	first := &page.AnnotationResult{
		ID: "a1", PageUUID: "p1", FromUUID: "p1-v1", ToUUID: "p1-v2",
		Annotation: page.Annotation{Author: "ana", Notes: "price up", Significance: 0.8, Labels: []string{"pricing"}},
	}
	if err := s.InsertAnnotation(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.Count != 1 || first.CreatedAt.IsZero() {
		t.Fatalf("first = %+v", first)
	}

	second := &page.AnnotationResult{ID: "a2", PageUUID: "p1", FromUUID: "p1-v1", ToUUID: "p1-v2",
		CreatedAt: first.CreatedAt.Add(time.Second)}
	if err := s.InsertAnnotation(ctx, second); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if second.Count != 2 {
		t.Fatalf("second count = %d, want 2", second.Count)
	}

	list, err := s.ListAnnotations(ctx, "p1", "p1-v1", "p1-v2")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "a1" || list[1].Count != 2 {
		t.Fatalf("list = %+v", list)
	}
	if got := list[0].Annotation; got.Significance != 0.8 || len(got.Labels) != 1 || got.Labels[0] != "pricing" {
		t.Errorf("annotation = %+v", got)
	}
	if len(list[1].Annotation.Labels) != 0 {
		t.Errorf("labels = %v, want empty", list[1].Annotation.Labels)
	}

	other, err := s.ListAnnotations(ctx, "p1", "p1-v2", "p1-v1")
	if err != nil || len(other) != 0 {
		t.Fatalf("reversed change = %v, %v", other, err)
	}
}

func TestChangeQuery(t *testing.T) {
	s := testStore(t)
	read := func() int64 {
		var v int64
		if err := s.DB.QueryRow(ChangeQuery).Scan(&v); err != nil {
			t.Fatal(err)
		}
		return v
	}

	before := read()
	seedPage(t, s, "p1", "Pricing")
	afterPage := read()
	seedPage(t, s, "p2", "Docs", 10)
	if !(before < afterPage && afterPage < read()) {
		t.Fatal("change token did not grow")
	}
}
