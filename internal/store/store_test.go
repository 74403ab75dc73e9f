package store

import (
	"sync"
	"testing"
	"time"
)

type pkgRecord struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ---------------------------------------------------------------------------
// Store[T]
// ---------------------------------------------------------------------------

func TestNextID(t *testing.T) {
	s := New[pkgRecord]("launch")
	if id := s.NextID(); id != "launch_000001" {
		t.Errorf("expected launch_000001, got %s", id)
	}
	if id := s.NextID(); id != "launch_000002" {
		t.Errorf("expected launch_000002, got %s", id)
	}
}

func TestSetGetOverwrite(t *testing.T) {
	s := New[pkgRecord]("pkg")
	s.Set("com.huawei.health", pkgRecord{Name: "Huawei Health", Version: "13.0"})
	s.Set("com.huawei.health", pkgRecord{Name: "Huawei Health", Version: "14.0"})

	got, ok := s.Get("com.huawei.health")
	if !ok {
		t.Fatal("expected item to be found")
	}
	if got.Version != "14.0" {
		t.Errorf("expected overwritten version, got %+v", got)
	}
	if s.Count() != 1 {
		t.Errorf("expected count 1 after overwrite, got %d", s.Count())
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("expected ok=false for missing item")
	}
}

func TestReplace(t *testing.T) {
	s := New[pkgRecord]("pkg")
	s.Set("old", pkgRecord{Name: "old"})

	s.Replace([]pkgRecord{{Name: "b"}, {Name: "a"}, {Name: "b", Version: "2"}}, func(p pkgRecord) string { return p.Name })

	if _, ok := s.Get("old"); ok {
		t.Error("expected previous items to be dropped")
	}
	list := s.List()
	if len(list) != 2 || list[0].Name != "b" || list[1].Name != "a" {
		t.Fatalf("expected [b a] in given order, got %+v", list)
	}
	if list[0].Version != "2" {
		t.Errorf("expected later duplicate to win, got version %q", list[0].Version)
	}
	if s.Count() != 2 {
		t.Errorf("expected count 2, got %d", s.Count())
	}
}

func TestDeleteKeepsOrder(t *testing.T) {
	s := New[pkgRecord]("pkg")
	s.Set("a", pkgRecord{Name: "alpha"})
	s.Set("b", pkgRecord{Name: "beta"})
	s.Set("c", pkgRecord{Name: "gamma"})

	if !s.Delete("b") {
		t.Error("expected Delete to return true for existing item")
	}
	if s.Delete("b") {
		t.Error("expected Delete to return false for already-deleted item")
	}

	items := s.List()
	if len(items) != 2 || items[0].Name != "alpha" || items[1].Name != "gamma" {
		t.Errorf("unexpected list after delete: %+v", items)
	}
}

func TestPaginate(t *testing.T) {
	s := New[pkgRecord]("launch")
	for i := 0; i < 5; i++ {
		s.Set(s.NextID(), pkgRecord{Name: "launch"})
	}

	all := s.Paginate("", 0)
	if len(all.Data) != 5 || all.HasMore || all.Total != 5 {
		t.Errorf("unexpected full page: len=%d has_more=%v total=%d", len(all.Data), all.HasMore, all.Total)
	}

	page1 := s.Paginate("", 2)
	if len(page1.Data) != 2 || !page1.HasMore {
		t.Fatalf("unexpected first page: %+v", page1)
	}
	page2 := s.Paginate(page1.Cursor, 2)
	if len(page2.Data) != 2 || !page2.HasMore {
		t.Fatalf("unexpected second page: %+v", page2)
	}
	page3 := s.Paginate(page2.Cursor, 2)
	if len(page3.Data) != 1 || page3.HasMore {
		t.Fatalf("unexpected last page: %+v", page3)
	}
}

func TestPaginateEmptyStore(t *testing.T) {
	s := New[pkgRecord]("launch")
	page := s.Paginate("", 10)
	if len(page.Data) != 0 || page.HasMore {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestSnapshotAndLoadSnapshot(t *testing.T) {
	s := New[pkgRecord]("launch")
	s.Set("launch_000002", pkgRecord{Name: "b"})
	s.Set("launch_000001", pkgRecord{Name: "a"})

	s2 := New[pkgRecord]("launch")
	s2.Set("stale", pkgRecord{Name: "stale"})
	s2.LoadSnapshot(s.Snapshot())

	if _, ok := s2.Get("stale"); ok {
		t.Error("stale item should have been replaced")
	}
	items := s2.List()
	if len(items) != 2 || items[0].Name != "a" {
		t.Errorf("expected sorted order after LoadSnapshot, got %+v", items)
	}
	// The counter continues past loaded items.
	if id := s2.NextID(); id != "launch_000003" {
		t.Errorf("expected launch_000003, got %s", id)
	}
}

func TestReset(t *testing.T) {
	s := New[pkgRecord]("launch")
	s.Set(s.NextID(), pkgRecord{})
	s.Reset()

	if s.Count() != 0 {
		t.Errorf("expected 0 items after reset, got %d", s.Count())
	}
	if id := s.NextID(); id != "launch_000001" {
		t.Errorf("expected launch_000001 after reset, got %s", id)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New[pkgRecord]("launch")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.NextID()
			s.Set(id, pkgRecord{Name: id})
			s.Get(id)
			s.List()
		}()
	}
	wg.Wait()

	if s.Count() != 100 {
		t.Errorf("expected 100, got %d", s.Count())
	}
}

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

func TestClockNowFollowsWallTime(t *testing.T) {
	c := NewClock()
	before := time.Now()
	now := c.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("clock.Now() outside expected range: before=%v now=%v after=%v", before, now, after)
	}
}

func TestClockAtAdvanceAndReset(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewClockAt(base)

	c.Advance(time.Hour)
	c.Advance(2 * time.Hour)
	if got := c.Now(); !got.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("expected base+3h, got %v", got)
	}
	if c.Offset() != 3*time.Hour {
		t.Errorf("expected 3h offset, got %v", c.Offset())
	}

	c.Reset()
	if got := c.Now(); !got.Equal(base) {
		t.Errorf("expected base after reset, got %v", got)
	}
}
