package memtable

import "github.com/ravipatel/lumendb/types"

// Slot is the tagged value a MemTable stores per key: either a live
// value (Put) or an explicit deletion marker (Tombstone) that must
// survive a flush so deletes override older, already-flushed SSTs.
type Slot struct {
	Kind  types.Kind
	Value string // meaningless when Kind == types.KindTombstone
}

// PutSlot builds a live-value slot.
func PutSlot(value string) Slot {
	return Slot{Kind: types.KindPut, Value: value}
}

// TombstoneSlot builds a deletion-marker slot.
func TombstoneSlot() Slot {
	return Slot{Kind: types.KindTombstone}
}

// Record is a single (key, slot) pair, used by Iterator.
type Record struct {
	Key  string
	Slot Slot
}
