package store

import (
	"testing"
	"time"
)

func TestCursorRoundTrip(t *testing.T) {
	want := OrderCursor{CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ID: "7d0f8e2a-0000-4000-8000-000000000001"}

	got, err := DecodeCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if _, err := DecodeCursor("%%%"); err == nil {
		t.Error("Expected error for malformed cursor")
	}
}

func TestEmptyCursorIsAfterEverything(t *testing.T) {
	c, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !c.Before(time.Now(), "ffffffff") {
		t.Error("Expected an order created now to sort after the empty cursor")
	}
}

func TestPaginate(t *testing.T) {
	base := time.Now()
	items := []OrderCursor{
		{CreatedAt: base, ID: "c"},
		{CreatedAt: base.Add(-time.Minute), ID: "b"},
		{CreatedAt: base.Add(-2 * time.Minute), ID: "a"},
	}

	page := Paginate(items, 2, func(c OrderCursor) OrderCursor { return c })
	if !page.HasMore || len(page.Items) != 2 {
		t.Fatalf("Expected 2 items and more, got %d items hasMore=%v", len(page.Items), page.HasMore)
	}

	next, err := DecodeCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if next.ID != "b" {
		t.Errorf("Expected next cursor at b, got %s", next.ID)
	}

	last := Paginate(items[2:], 2, func(c OrderCursor) OrderCursor { return c })
	if last.HasMore || last.NextCursor != "" {
		t.Errorf("Expected final page, got %+v", last)
	}
}

func TestNewOffsetPage(t *testing.T) {
	page := NewOffsetPage([]int{1, 2}, 5, 1, 2)
	if page.TotalPages != 3 {
		t.Errorf("Expected 3 pages, got %d", page.TotalPages)
	}

	empty := NewOffsetPage[int](nil, 0, 1, 20)
	if empty.Items == nil || empty.TotalPages != 0 {
		t.Errorf("Unexpected empty page: %+v", empty)
	}
}
