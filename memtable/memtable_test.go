package memtable

import (
	"fmt"
	"testing"

	"github.com/ravipatel/lumendb/types"
)

func TestMemTablePutGet(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Put("b", "2")

	if v, ok := m.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = (%q,%v), want (1,true)", v, ok)
	}
	if v, ok := m.Get("b"); !ok || v != "2" {
		t.Fatalf("Get(b) = (%q,%v), want (2,true)", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) should report not found")
	}
}

func TestMemTableOverwrite(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Put("a", "2")

	if v, ok := m.Get("a"); !ok || v != "2" {
		t.Fatalf("Get(a) = (%q,%v), want (2,true)", v, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestMemTableDeleteHidesValueFromGet(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Delete("a")

	if _, ok := m.Get("a"); ok {
		t.Fatal("Get after Delete should report not found")
	}

	slot, ok := m.GetSlot("a")
	if !ok {
		t.Fatal("GetSlot after Delete should still find the tombstone entry")
	}
	if slot.Kind != types.KindTombstone {
		t.Fatalf("slot kind = %v, want tombstone", slot.Kind)
	}
}

func TestMemTableDeleteOfAbsentKeyInsertsTombstone(t *testing.T) {
	m := New()
	m.Delete("never-put")

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (delete of absent key still occupies a slot)", m.Len())
	}
	slot, ok := m.GetSlot("never-put")
	if !ok || slot.Kind != types.KindTombstone {
		t.Fatalf("GetSlot = (%+v,%v), want tombstone present", slot, ok)
	}
}

func TestMemTableIteratorOrderedIncludesTombstones(t *testing.T) {
	m := New()
	m.Put("c", "3")
	m.Put("a", "1")
	m.Delete("b")

	var keys []string
	var kinds []types.Kind
	for rec := range m.Iterator() {
		keys = append(keys, rec.Key)
		kinds = append(kinds, rec.Slot.Kind)
	}

	wantKeys := []string{"a", "b", "c"}
	for i, k := range wantKeys {
		if keys[i] != k {
			t.Fatalf("key[%d] = %q, want %q", i, keys[i], k)
		}
	}
	if kinds[1] != types.KindTombstone {
		t.Fatalf("kind[1] = %v, want tombstone", kinds[1])
	}
}

func TestMemTableFreezeIsReadOnlySnapshot(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Put("b", "2")

	frozen := m.Freeze()

	if v, ok := frozen.Get("a"); !ok || v != "1" {
		t.Fatalf("frozen.Get(a) = (%q,%v), want (1,true)", v, ok)
	}
	if frozen.Len() != 2 {
		t.Fatalf("frozen.Len() = %d, want 2", frozen.Len())
	}

	count := 0
	for range frozen.Iterator() {
		count++
	}
	if count != 2 {
		t.Fatalf("frozen iterator count = %d, want 2", count)
	}
}

func TestDropTombstonesKeepsPutsOnly(t *testing.T) {
	m := New()
	m.Put("a", "1")
	m.Put("b", "2")
	m.Delete("b")
	m.Delete("c")

	if got := m.Len(); got != 3 {
		t.Fatalf("Len() before drop = %d, want 3 (tombstones still occupy slots)", got)
	}

	live := m.DropTombstones()
	if got := live.Len(); got != 1 {
		t.Fatalf("Len() after drop = %d, want 1", got)
	}
	if v, ok := live.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = (%q,%v), want (1,true)", v, ok)
	}
	if _, ok := live.GetSlot("b"); ok {
		t.Fatal("b's tombstone should have been dropped entirely, not merely hidden")
	}
	if _, ok := live.GetSlot("c"); ok {
		t.Fatal("c's tombstone should have been dropped entirely, not merely hidden")
	}

	// The original table must be untouched.
	if m.Len() != 3 {
		t.Fatalf("DropTombstones mutated its receiver: Len() = %d, want 3", m.Len())
	}
}

func TestFromRecordsReplaysLaterWritesOverEarlier(t *testing.T) {
	records := []Record{
		{Key: "a", Slot: PutSlot("1")},
		{Key: "b", Slot: PutSlot("2")},
		{Key: "a", Slot: PutSlot("overwritten")},
		{Key: "b", Slot: TombstoneSlot()},
	}

	m := FromRecords(func(yield func(Record) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	})

	if v, ok := m.Get("a"); !ok || v != "overwritten" {
		t.Fatalf("Get(a) = (%q,%v), want (overwritten,true)", v, ok)
	}
	if _, ok := m.Get("b"); ok {
		t.Fatal("Get(b) should be hidden by the replayed tombstone")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestMemTableManyKeysPreserveOrderAndCount(t *testing.T) {
	m := New()
	const n = 2000
	for i := 0; i < n; i++ {
		m.Put(fmt.Sprintf("key-%05d", i), fmt.Sprintf("val-%d", i))
	}

	if m.Len() != n {
		t.Fatalf("Len() = %d, want %d", m.Len(), n)
	}

	prev := ""
	count := 0
	for rec := range m.Iterator() {
		if rec.Key < prev {
			t.Fatalf("iterator out of order at %q after %q", rec.Key, prev)
		}
		prev = rec.Key
		count++
	}
	if count != n {
		t.Fatalf("iterator yielded %d records, want %d", count, n)
	}
}
