// Package memtable provides an in-memory, ordered key-value store backed
// by a skip list, plus a frozen (read-only) variant taken at flush time.
package memtable

import (
	"iter"

	"github.com/ravipatel/lumendb/types"
)

// MemTable is the single-writer, many-reader in-memory map that absorbs
// recent writes ahead of a flush to disk. Keys are ordered byte-wise
// (Go's native string comparison), matching the on-disk SST ordering.
type MemTable struct {
	sl *skipList
}

// New returns an empty, writable MemTable.
func New() *MemTable {
	return &MemTable{sl: newSkipList()}
}

// Put inserts or overwrites key with value.
func (m *MemTable) Put(key, value string) {
	m.sl.Put(key, PutSlot(value))
}

// Delete overwrites key's slot with a tombstone, regardless of whether
// the key was previously present. A later Get on key returns !ok until
// a subsequent Put.
func (m *MemTable) Delete(key string) {
	m.sl.Put(key, TombstoneSlot())
}

// Get returns (value, true) for a live Put, or ("", false) for both an
// absent key and a Tombstone: callers above MemTable never observe
// tombstones directly through Get.
func (m *MemTable) Get(key string) (string, bool) {
	slot, ok := m.sl.Get(key)
	if !ok || slot.Kind == types.KindTombstone {
		return "", false
	}
	return slot.Value, true
}

// GetSlot returns the raw slot (Put or Tombstone) for key, used by the
// flush path which must preserve tombstones when writing an SST.
func (m *MemTable) GetSlot(key string) (Slot, bool) {
	return m.sl.Get(key)
}

// Len reports the number of distinct keys held, live or tombstoned. It
// is used as the flush-threshold proxy per entry count.
func (m *MemTable) Len() int {
	return m.sl.size
}

// Iterator walks (key, slot) pairs in ascending key order, including
// tombstones.
func (m *MemTable) Iterator() iter.Seq[Record] {
	return m.sl.Iterator()
}

// Frozen is a read-only handle onto a MemTable taken at flush time. It
// shares no mutable state with the MemTable that produced it beyond the
// underlying skip list, which the Engine guarantees is never mutated
// again once frozen.
type Frozen struct {
	sl *skipList
}

// Freeze yields an immutable view sharing m's current data. The caller
// must not call any mutating method on m after freezing it; the Engine
// enforces this by replacing its active handle with a fresh MemTable.
func (m *MemTable) Freeze() *Frozen {
	return &Frozen{sl: m.sl}
}

// Get behaves like MemTable.Get.
func (f *Frozen) Get(key string) (string, bool) {
	slot, ok := f.sl.Get(key)
	if !ok || slot.Kind == types.KindTombstone {
		return "", false
	}
	return slot.Value, true
}

// GetSlot returns the raw slot (Put or Tombstone) for key. Used by
// Engine.Get, which must treat a Tombstone as a final answer rather
// than falling through to disk.
func (f *Frozen) GetSlot(key string) (Slot, bool) {
	return f.sl.Get(key)
}

// Len reports the number of distinct keys held.
func (f *Frozen) Len() int {
	return f.sl.size
}

// Iterator walks (key, slot) pairs in ascending key order.
func (f *Frozen) Iterator() iter.Seq[Record] {
	return f.sl.Iterator()
}

// DropTombstones returns a new MemTable holding only m's live Put
// entries, discarding every Tombstone outright. Used when compacting
// into the terminal level, where no lower level remains that a dropped
// deletion marker would need to keep shadowing.
func (m *MemTable) DropTombstones() *MemTable {
	out := New()
	for rec := range m.Iterator() {
		if rec.Slot.Kind == types.KindPut {
			out.sl.Put(rec.Key, rec.Slot)
		}
	}
	return out
}

// FromRecords reconstructs a MemTable-like map by replaying a sequence
// of records in order, e.g. from decoding an SST data file block by
// block during compaction. Later records for the same key win,
// matching the on-disk write order.
func FromRecords(records iter.Seq[Record]) *MemTable {
	m := New()
	for rec := range records {
		m.sl.Put(rec.Key, rec.Slot)
	}
	return m
}
