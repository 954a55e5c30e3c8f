package filehandler

import (
	"sync"
	"testing"

	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/sst"
	"github.com/ravipatel/lumendb/types"
)

func frozenWith(puts map[string]string) *memtable.Frozen {
	m := memtable.New()
	for k, v := range puts {
		m.Put(k, v)
	}
	return m.Freeze()
}

func TestFlushMakesBundleVisible(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	fh := New(reg)
	defer fh.Close()

	if err := fh.Flush(frozenWith(map[string]string{"a": "1"})); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	bundles := fh.VisibleBundles()
	if len(bundles) != 1 {
		t.Fatalf("expected 1 visible bundle, got %d", len(bundles))
	}
	if bundles[0].Level != types.L0 {
		t.Fatalf("expected bundle at L0, got %s", bundles[0].Level)
	}
}

func TestFlushTriggersBackgroundCompactionAtThreshold(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	fh := New(reg)

	for i := 0; i < 4; i++ {
		if err := fh.Flush(frozenWith(map[string]string{"k": "v"})); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	// Close waits for the flush queue to drain and the compaction signal
	// it raised to be consumed, so the L0->L1 compaction has run by the
	// time Close returns.
	fh.Close()

	l0, l1, _ := reg.Stats()
	if l0 != 0 {
		t.Fatalf("expected L0 drained by background compaction, got %d", l0)
	}
	if l1 != 1 {
		t.Fatalf("expected 1 L1 bundle after compaction, got %d", l1)
	}
}

func TestCloseRejectsSubsequentFlush(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	fh := New(reg)
	fh.Close()

	if err := fh.Flush(frozenWith(map[string]string{"a": "1"})); err == nil {
		t.Fatal("expected Flush after Close to return an error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	fh := New(reg)
	fh.Close()
	fh.Close()
}

func TestConcurrentFlushesAllSucceedAndAreAllVisible(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	fh := New(reg)
	defer fh.Close()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			errs[i] = fh.Flush(frozenWith(map[string]string{key: "v"}))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	// Each Flush call commits its own bundle before returning, regardless
	// of how many land concurrently; background compaction may later
	// merge some of them, so confirm at least one bundle exists and every
	// flushed key is still readable from the visible bundles (none of the
	// concurrent calls clobbered another's write).
	fh.Close()
	l0, l1, l2 := reg.Stats()
	if l0+l1+l2 == 0 {
		t.Fatal("expected at least one committed bundle after concurrent flushes")
	}
	for i := 0; i < n; i++ {
		key := string(rune('a' + i%26))
		found := false
		for _, b := range reg.IterVisible() {
			r, err := sst.OpenReader(b.DataPath, b.IndexPath, b.BloomPath)
			if err != nil {
				t.Fatalf("OpenReader: %v", err)
			}
			v, ok, err := r.Get(key)
			if err != nil {
				t.Fatalf("Get(%s): %v", key, err)
			}
			if ok && v == "v" {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("key %s from Flush %d is not visible after concurrent flushes", key, i)
		}
	}
}
