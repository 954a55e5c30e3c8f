package sst

import (
	"testing"

	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/types"
)

func TestFlushCommitsAndSignalsThreshold(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}

	for i := 0; i < 4; i++ {
		m := memtable.New()
		m.Put("k", "v")
		should, err := Flush(reg, types.L0, m.Freeze().Iterator())
		if err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
		if i < 3 && should {
			t.Fatalf("Flush %d: unexpected ShouldCompact before threshold", i)
		}
		if i == 3 && !should {
			t.Fatal("4th flush to L0 should signal ShouldCompact")
		}
	}

	if len(reg.IterVisible()) != 4 {
		t.Fatalf("expected 4 visible bundles, got %d", len(reg.IterVisible()))
	}
}
