package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/fetchwork/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, schema.LoadDefault())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustAdd(t *testing.T, s *Store, itemType string, fields ...map[string]any) []Item {
	t.Helper()
	items := make([]Item, len(fields))
	for i, f := range fields {
		items[i] = Item{Fields: f}
	}
	applied, itemErrs, err := s.AddOrUpdate(items, itemType, false)
	if err != nil {
		t.Fatalf("AddOrUpdate(%s) failed: %v", itemType, err)
	}
	if len(itemErrs) != 0 {
		t.Fatalf("AddOrUpdate(%s) item errors: %v", itemType, itemErrs)
	}
	return applied
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, schema.LoadDefault())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_URLForms(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"plain.db", "plain.db"},
		{"sqlite:///tmp/a.db", "/tmp/a.db"},
		{"sqlite://rel.db", "rel.db"},
		{"file:f.db", "f.db"},
	}
	for _, tt := range tests {
		if got := ParseURL(tt.url); got != tt.want {
			t.Errorf("ParseURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestAddOrUpdate_InsertAssignsIDs(t *testing.T) {
	s := openTestStore(t)

	applied := mustAdd(t, s, "object",
		map[string]any{"name": "spoon", "class_id": 1},
		map[string]any{"name": "fork", "class_id": 1},
	)

	if applied[0].ID == 0 || applied[1].ID == 0 {
		t.Fatalf("ids not assigned: %+v", applied)
	}
	if applied[0].ID == applied[1].ID {
		t.Fatalf("duplicate ids assigned: %+v", applied)
	}
	if applied[0].CommitID != 0 {
		t.Errorf("staged item should have no commit id, got %d", applied[0].CommitID)
	}
}

func TestAddOrUpdate_Update(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "spoon", "class_id": 1})

	applied[0].Fields["name"] = "ladle"
	updated, itemErrs, err := s.AddOrUpdate(applied, "object", false)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(itemErrs) != 0 {
		t.Fatalf("unexpected item errors: %v", itemErrs)
	}

	got, err := s.SelectAll(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(got) != 1 || got[0].Field("name") != "ladle" {
		t.Fatalf("update not visible: %+v", got)
	}
	if updated[0].ID != applied[0].ID {
		t.Errorf("update changed id: %d -> %d", applied[0].ID, updated[0].ID)
	}
}

func TestAddOrUpdate_UpdateMissingItem(t *testing.T) {
	s := openTestStore(t)

	_, itemErrs, err := s.AddOrUpdate(
		[]Item{{ID: 999, Fields: map[string]any{"name": "ghost"}}}, "object", false)
	if err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}
	if len(itemErrs) != 1 {
		t.Fatalf("expected one item error, got %v", itemErrs)
	}
}

func TestAddOrUpdate_CheckPartialSuccess(t *testing.T) {
	s := openTestStore(t)

	applied, itemErrs, err := s.AddOrUpdate([]Item{
		{Fields: map[string]any{"name": "good", "class_id": 1}},
		{Fields: map[string]any{"class_id": 1}}, // missing required name
		{Fields: map[string]any{"name": "also_good", "class_id": 1}},
	}, "object", true)
	if err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}

	if len(applied) != 2 {
		t.Fatalf("expected 2 applied, got %d", len(applied))
	}
	if len(itemErrs) != 1 {
		t.Fatalf("expected 1 item error, got %v", itemErrs)
	}
	if itemErrs[0].ItemType != "object" {
		t.Errorf("item error type = %q", itemErrs[0].ItemType)
	}
}

func TestAddOrUpdate_UniqueViolation(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object", map[string]any{"name": "taken", "class_id": 1})

	applied, itemErrs, err := s.AddOrUpdate(
		[]Item{{Fields: map[string]any{"name": "taken", "class_id": 2}}}, "object", true)
	if err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}
	if len(applied) != 0 || len(itemErrs) != 1 {
		t.Fatalf("expected unique violation, got applied=%v errs=%v", applied, itemErrs)
	}
}

func TestAddOrUpdate_UnknownType(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.AddOrUpdate([]Item{{Fields: map[string]any{}}}, "gadget", false)
	if err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestReadd_PreservesIdentity(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "spoon", "class_id": 1})
	id := applied[0].ID

	if _, err := s.Remove(map[string][]int64{"object": {id}}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	readded, itemErrs, err := s.Readd(applied, "object")
	if err != nil {
		t.Fatalf("Readd failed: %v", err)
	}
	if len(itemErrs) != 0 {
		t.Fatalf("unexpected item errors: %v", itemErrs)
	}
	if readded[0].ID != id {
		t.Fatalf("identity lost: %d -> %d", id, readded[0].ID)
	}

	got, err := s.SelectAll(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("readded item not found: %+v", got)
	}
}

func TestRemove_MissingIDCollected(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "spoon", "class_id": 1})

	itemErrs, err := s.Remove(map[string][]int64{
		"object": {applied[0].ID, 12345},
	})
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(itemErrs) != 1 || itemErrs[0].ID != 12345 {
		t.Fatalf("expected one missing-id error, got %v", itemErrs)
	}

	n, err := s.Count(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("item not removed, count = %d", n)
	}
}

func TestCommitSession_StampsStagedRows(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object",
		map[string]any{"name": "a", "class_id": 1},
		map[string]any{"name": "b", "class_id": 1},
	)

	dirty, err := s.Dirty()
	if err != nil || !dirty {
		t.Fatalf("Dirty() = %v, %v; want true", dirty, err)
	}

	commitID, err := s.CommitSession("first commit")
	if err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}
	if commitID == 0 {
		t.Fatal("commit id not assigned")
	}

	items, err := s.SelectAll(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	for _, it := range items {
		if it.CommitID != commitID {
			t.Errorf("item %d commit_id = %d, want %d", it.ID, it.CommitID, commitID)
		}
	}

	// Commits are fetchable as items too.
	records, err := s.SelectAll(NewQuery("commit", nil))
	if err != nil {
		t.Fatalf("SelectAll(commit) failed: %v", err)
	}
	if len(records) != 1 || records[0].Field("message") != "first commit" {
		t.Fatalf("commit record missing: %+v", records)
	}

	dirty, err = s.Dirty()
	if err != nil || dirty {
		t.Fatalf("Dirty() after commit = %v, %v; want false", dirty, err)
	}
}

func TestCommitSession_EmptyMessage(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CommitSession(""); err == nil {
		t.Fatal("expected error for empty commit message")
	}
}

func TestRollbackSession_DiscardsStagedWork(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object", map[string]any{"name": "keep", "class_id": 1})
	if _, err := s.CommitSession("baseline"); err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}

	mustAdd(t, s, "object", map[string]any{"name": "discard", "class_id": 1})
	if err := s.RollbackSession(); err != nil {
		t.Fatalf("RollbackSession failed: %v", err)
	}

	items, err := s.SelectAll(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(items) != 1 || items[0].Field("name") != "keep" {
		t.Fatalf("rollback did not restore baseline: %+v", items)
	}
}

func TestCommitSession_RemovalOnly(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "victim", "class_id": 1})
	if _, err := s.CommitSession("baseline"); err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}

	// A deletion leaves no staged row behind; the session must still
	// count as dirty and the removal must commit.
	if _, err := s.Remove(map[string][]int64{"object": {applied[0].ID}}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	dirty, err := s.Dirty()
	if err != nil || !dirty {
		t.Fatalf("Dirty() after removal = %v, %v; want true", dirty, err)
	}

	commitID, err := s.CommitSession("remove victim")
	if err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}
	if commitID == 0 {
		t.Fatal("commit id not assigned")
	}

	dirty, err = s.Dirty()
	if err != nil || dirty {
		t.Fatalf("Dirty() after commit = %v, %v; want false", dirty, err)
	}

	// The removal is durable: rolling back the fresh session must not
	// resurrect the row.
	if err := s.RollbackSession(); err != nil {
		t.Fatalf("RollbackSession failed: %v", err)
	}
	n, err := s.Count(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("committed removal resurrected, count = %d", n)
	}
}

func TestRollbackSession_ClearsRemovalDirt(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "victim", "class_id": 1})
	if _, err := s.CommitSession("baseline"); err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}

	if _, err := s.Remove(map[string][]int64{"object": {applied[0].ID}}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.RollbackSession(); err != nil {
		t.Fatalf("RollbackSession failed: %v", err)
	}

	dirty, err := s.Dirty()
	if err != nil || dirty {
		t.Fatalf("Dirty() after rollback = %v, %v; want false", dirty, err)
	}
}

func TestRollbackSession_RestoresRemovedItems(t *testing.T) {
	s := openTestStore(t)
	applied := mustAdd(t, s, "object", map[string]any{"name": "victim", "class_id": 1})
	if _, err := s.CommitSession("baseline"); err != nil {
		t.Fatalf("CommitSession failed: %v", err)
	}

	if _, err := s.Remove(map[string][]int64{"object": {applied[0].ID}}); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.RollbackSession(); err != nil {
		t.Fatalf("RollbackSession failed: %v", err)
	}

	n, err := s.Count(NewQuery("object", nil))
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed item not restored, count = %d", n)
	}
}

func TestSelectChunk_Windows(t *testing.T) {
	s := openTestStore(t)

	fields := make([]map[string]any, 25)
	for i := range fields {
		fields[i] = map[string]any{"name": string(rune('a'+i%26)) + "x", "class_id": i}
	}
	var items []Item
	for _, f := range fields {
		items = append(items, Item{Fields: f})
	}
	if _, _, err := s.AddOrUpdate(items, "parameter_value", false); err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}

	q := NewQuery("parameter_value", nil)
	sizes := []int{}
	offset := 0
	for {
		chunk, err := s.SelectChunk(q, offset, 10)
		if err != nil {
			t.Fatalf("SelectChunk failed: %v", err)
		}
		sizes = append(sizes, len(chunk))
		if len(chunk) == 0 {
			break
		}
		offset += len(chunk)
	}

	want := []int{10, 10, 5, 0}
	if len(sizes) != len(want) {
		t.Fatalf("chunk sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("chunk sizes = %v, want %v", sizes, want)
		}
	}
}

func TestSelectChunk_StableOrder(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object",
		map[string]any{"name": "one", "class_id": 1},
		map[string]any{"name": "two", "class_id": 1},
		map[string]any{"name": "three", "class_id": 1},
	)

	first, err := s.SelectChunk(NewQuery("object", nil), 0, 2)
	if err != nil {
		t.Fatalf("SelectChunk failed: %v", err)
	}
	second, err := s.SelectChunk(NewQuery("object", nil), 2, 2)
	if err != nil {
		t.Fatalf("SelectChunk failed: %v", err)
	}
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("unexpected chunking: %d, %d", len(first), len(second))
	}
	if first[0].ID >= first[1].ID || first[1].ID >= second[0].ID {
		t.Fatal("chunks not ordered by id")
	}
}

func TestExists_CountsProbes(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object", map[string]any{"name": "present", "class_id": 1})

	if s.ProbeCount() != 0 {
		t.Fatalf("probe count = %d before any probe", s.ProbeCount())
	}

	got, err := s.Exists(NewQuery("object", Eq("name", "present")))
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !got {
		t.Error("Exists = false for present item")
	}

	got, err = s.Exists(NewQuery("object", Eq("name", "absent")))
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if got {
		t.Error("Exists = true for absent item")
	}

	if s.ProbeCount() != 2 {
		t.Errorf("probe count = %d, want 2", s.ProbeCount())
	}
}

func TestSelectAll_FilterOnFields(t *testing.T) {
	s := openTestStore(t)
	mustAdd(t, s, "object",
		map[string]any{"name": "red", "class_id": 1},
		map[string]any{"name": "blue", "class_id": 2},
	)

	items, err := s.SelectAll(NewQuery("object", Eq("class_id", 2)))
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if len(items) != 1 || items[0].Field("name") != "blue" {
		t.Fatalf("filter mismatch: %+v", items)
	}
}

func TestSessionAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, schema.LoadDefault())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	if _, err := s.SelectAll(NewQuery("object", nil)); err != ErrNoSession {
		t.Errorf("SelectAll after close = %v, want ErrNoSession", err)
	}
}
