// Package compaction merges all bundles of one level into a single
// bundle at the next level, iterating while thresholds remain exceeded.
package compaction

import (
	"github.com/google/uuid"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/sst"
	"github.com/ravipatel/lumendb/types"
)

// Run executes the compaction loop starting at L0:
//  1. Stop once the current level has no successor.
//  2. Snapshot the level's bundle list under a read lock, then release it.
//  3. If empty, stop.
//  4. Reverse the snapshot to oldest-first.
//  5. Load the oldest bundle into a merge base.
//  6. Merge each newer bundle in: Put overwrites, Tombstone overwrites
//     the key's slot with a tombstone. Tombstones are dropped only when
//     the next level is the terminal one.
//  7. If the merge result is empty, remove the compacted inputs and stop.
//  8. Otherwise flush the merge result to the next level.
//  9. Remove the compacted inputs only after the new bundle is committed.
//
// Repeats at the next level only if that flush itself reported
// ShouldCompact.
func Run(reg *registry.Registry) error {
	level := types.L0

	for {
		next, ok := level.Next()
		if !ok {
			return nil
		}

		bundles := reg.Snapshot(level)
		if len(bundles) == 0 {
			return nil
		}

		// Snapshot is newest-first; reverse to oldest-first so the merge
		// base is the oldest bundle and later bundles overwrite it.
		reverse(bundles)

		compactedIDs := map[uuid.UUID]bool{bundles[0].ID: true}
		merger, err := sst.LoadMemTable(bundles[0].DataPath)
		if err != nil {
			return err
		}

		for _, b := range bundles[1:] {
			compactedIDs[b.ID] = true
			newer, err := sst.LoadMemTable(b.DataPath)
			if err != nil {
				return err
			}
			for rec := range newer.Iterator() {
				if rec.Slot.Kind == types.KindPut {
					merger.Put(rec.Key, rec.Slot.Value)
				} else {
					merger.Delete(rec.Key)
				}
			}
		}

		// At the terminal level (next.Next() has no successor) no lower
		// level remains that a deleted key's old value could resurface
		// from, so tombstones can be dropped outright instead of carried
		// forward forever. Above the terminal level a tombstone must
		// still ride along in the output in case a still-lower level
		// holds a stale Put for the same key.
		if _, hasNext := next.Next(); !hasNext {
			merger = merger.DropTombstones()
		}

		if merger.Len() == 0 {
			return reg.RemoveBundles(compactedIDs)
		}

		shouldCompact, err := sst.Flush(reg, next, merger.Freeze().Iterator())
		if err != nil {
			return err
		}
		if err := reg.RemoveBundles(compactedIDs); err != nil {
			return err
		}

		if !shouldCompact {
			return nil
		}
		level = next
	}
}

func reverse(bundles []registry.Bundle) {
	for i, j := 0, len(bundles)-1; i < j; i, j = i+1, j-1 {
		bundles[i], bundles[j] = bundles[j], bundles[i]
	}
}
