package sst

import (
	"iter"

	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/types"
)

// Flush writes records as a new bundle at level and commits it into reg,
// returning whether the level crossed its compaction threshold. Shared
// by the flush path (FileHandler, always at L0) and the Compactor (the
// level after the one being compacted: L1 or L2).
func Flush(reg *registry.Registry, level types.Level, records iter.Seq[memtable.Record]) (shouldCompact bool, err error) {
	u := reg.NewUncommitted(level)

	if err := Write(u.DataPath(), u.IndexPath(), u.BloomPath(), records); err != nil {
		return false, err
	}

	return reg.Commit(u)
}
