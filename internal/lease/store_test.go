package lease

import (
	"testing"

	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestLoadAbsentReturnsZeroCursor(t *testing.T) {
	s := newTestStore(t)
	c, err := s.Load("ns", "g1", "vehicle-telemetry", 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.Zero() {
		t.Fatalf("expected zero cursor, got %+v", c)
	}
	if c.Partition != 3 || c.Group != "g1" {
		t.Fatalf("identity not carried: %+v", c)
	}
}

func TestSaveNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	c := Cursor{Namespace: "ns", Group: "g1", Stream: "t", Partition: 0, Offset: "40", Sequence: 40}
	if err := s.Save(c); err != nil {
		t.Fatalf("save: %v", err)
	}

	// stale save must be ignored
	stale := c
	stale.Sequence = 10
	stale.Offset = "10"
	if err := s.Save(stale); err != nil {
		t.Fatalf("stale save: %v", err)
	}
	got, err := s.Load("ns", "g1", "t", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Sequence != 40 || got.Offset != "40" {
		t.Fatalf("cursor regressed: %+v", got)
	}

	// equal sequence is a no-op, not an error
	if err := s.Save(c); err != nil {
		t.Fatalf("equal save: %v", err)
	}

	// higher sequence advances
	c.Sequence = 55
	c.Offset = "55"
	if err := s.Save(c); err != nil {
		t.Fatalf("advance save: %v", err)
	}
	got, _ = s.Load("ns", "g1", "t", 0)
	if got.Sequence != 55 {
		t.Fatalf("cursor did not advance: %+v", got)
	}
}

func TestCursorsAreIsolatedByIdentity(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Cursor{Namespace: "ns", Group: "g1", Stream: "t", Partition: 0, Sequence: 7, Offset: "7"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(Cursor{Namespace: "ns", Group: "g1", Stream: "t", Partition: 1, Sequence: 9, Offset: "9"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	p0, _ := s.Load("ns", "g1", "t", 0)
	p1, _ := s.Load("ns", "g1", "t", 1)
	if p0.Sequence != 7 || p1.Sequence != 9 {
		t.Fatalf("partitions bled: %+v %+v", p0, p1)
	}
	other, _ := s.Load("ns", "g2", "t", 0)
	if !other.Zero() {
		t.Fatalf("group isolation broken: %+v", other)
	}
}

func TestCursorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	s := NewStore(db)
	if err := s.Save(Cursor{Namespace: "ns", Group: "g1", Stream: "t", Partition: 2, Sequence: 12, Offset: "12"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = db.Close()

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	got, err := NewStore(db2).Load("ns", "g1", "t", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Sequence != 12 || got.Offset != "12" {
		t.Fatalf("cursor lost across reopen: %+v", got)
	}
}
