package store

import "testing"

func seed(s *Store, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		rec := newRecord(id, int64(n-i)) // descending created as insertion proceeds
		s.Insert(rec)
		ids = append(ids, id)
	}
	return ids
}

func TestPaginationRoundTrip(t *testing.T) {
	s := New("customers")
	seed(s, 25)

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page := s.List(ListOptions{Limit: 10, StartingAfter: cursor})
		pages++
		for _, rec := range page.Data {
			id := rec.ID()
			if seen[id] {
				t.Fatalf("id %s returned twice across pages", id)
			}
			seen[id] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.Data[len(page.Data)-1].ID()
		if pages > 10 {
			t.Fatalf("pagination did not terminate")
		}
	}
	if len(seen) != 25 {
		t.Fatalf("saw %d unique records, want 25", len(seen))
	}
}

func TestLimitZeroIsExplicitEmptyPage(t *testing.T) {
	s := New("customers")
	seed(s, 5)
	page := s.List(ListOptions{Limit: 0})
	if len(page.Data) != 0 {
		t.Fatalf("limit=0 should return an empty page, got %d items", len(page.Data))
	}
}

func TestLimitAbove100Clamps(t *testing.T) {
	s := New("customers")
	seed(s, 150)
	page := s.List(ListOptions{Limit: 101})
	if len(page.Data) != 100 {
		t.Fatalf("limit=101 should clamp to 100, got %d", len(page.Data))
	}
}

func TestEndingBeforeWinsOverStartingAfter(t *testing.T) {
	s := New("customers")
	s.Insert(Record{"id": "a", "created": int64(3)})
	s.Insert(Record{"id": "b", "created": int64(2)})
	s.Insert(Record{"id": "c", "created": int64(1)})

	page := s.List(ListOptions{Limit: 10, StartingAfter: "a", EndingBefore: "c"})
	// ending_before wins: items strictly before "c" in created-desc order, i.e. a, b.
	if len(page.Data) != 2 || page.Data[0].ID() != "a" || page.Data[1].ID() != "b" {
		t.Fatalf("unexpected page when both cursors set: %+v", page.Data)
	}
}

func TestSortOrderCreatedDescIDAsc(t *testing.T) {
	s := New("customers")
	s.Insert(Record{"id": "z", "created": int64(1)})
	s.Insert(Record{"id": "a", "created": int64(1)})
	s.Insert(Record{"id": "m", "created": int64(5)})

	page := s.List(ListOptions{Limit: 10})
	if len(page.Data) != 3 {
		t.Fatalf("want 3 records, got %d", len(page.Data))
	}
	if page.Data[0].ID() != "m" {
		t.Fatalf("expected highest created first, got %s", page.Data[0].ID())
	}
	if page.Data[1].ID() != "a" || page.Data[2].ID() != "z" {
		t.Fatalf("expected id-asc tie-break, got order %s,%s", page.Data[1].ID(), page.Data[2].ID())
	}
}
