// Package engine is the top-level facade: it holds the active and
// frozen MemTables, routes reads through memory then disk, and rotates
// the active table into a flush request once it crosses the configured
// size threshold.
package engine

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/ravipatel/lumendb/filehandler"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/sst"
	"github.com/ravipatel/lumendb/types"
)

const defaultMaxMemtableSize = 1024

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMaxMemtableSize sets the number of entries the active MemTable
// may hold before it is frozen and queued for flush.
func WithMaxMemtableSize(n int) Option {
	return func(e *Engine) {
		e.maxMemtableSize = n
	}
}

// Engine is the store's public entry point: a single writer's
// active/frozen MemTable pair backed by a BundleRegistry and a
// FileHandler running flush and compaction in the background.
type Engine struct {
	mu              sync.RWMutex
	active          *memtable.MemTable
	frozen          *memtable.Frozen
	maxMemtableSize int

	fh *filehandler.FileHandler
}

// New opens (or creates) a store rooted at dir. The directory is
// created if missing; any existing bundles are discovered by the
// registry's directory rebuild.
func New(dir string, opts ...Option) (*Engine, error) {
	reg, err := registry.Open(dir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		active:          memtable.New(),
		maxMemtableSize: defaultMaxMemtableSize,
		fh:              filehandler.New(reg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Get consults the active MemTable, then the frozen MemTable, then the
// visible bundles newest-first. A Tombstone found at any layer is
// final: it shadows anything older and Get returns ("", false, nil)
// without searching further.
func (e *Engine) Get(key string) (string, bool, error) {
	slot, found := e.getMemSlot(key)
	if found {
		return resolveSlot(slot)
	}

	for _, b := range e.fh.VisibleBundles() {
		r, err := sst.OpenReader(b.DataPath, b.IndexPath, b.BloomPath)
		if err != nil {
			if isVanishedBundle(err) {
				continue
			}
			return "", false, err
		}
		slot, found, err := r.GetSlot(key)
		if err != nil {
			if isVanishedBundle(err) {
				continue
			}
			return "", false, err
		}
		if found {
			return resolveSlot(slot)
		}
	}
	return "", false, nil
}

// isVanishedBundle reports whether err is an Io failure caused by one
// of a bundle's files no longer existing: VisibleBundles returns a
// point-in-time snapshot, and a concurrent compaction run may commit
// its output and then remove this bundle's files between that snapshot
// and this call reaching it. Spec §5 guarantees readers stay correct
// during compaction, so a vanished bundle is skipped here rather than
// surfaced as a fatal error, extending the same defensive-read
// discipline sst.Reader already applies to decode errors.
func isVanishedBundle(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// getMemSlot checks the active then frozen MemTable for key, holding
// the engine lock across both so a concurrent Put cannot mutate the
// active table mid-read.
func (e *Engine) getMemSlot(key string) (memtable.Slot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if slot, ok := e.active.GetSlot(key); ok {
		return slot, true
	}
	if e.frozen != nil {
		if slot, ok := e.frozen.GetSlot(key); ok {
			return slot, true
		}
	}
	return memtable.Slot{}, false
}

func resolveSlot(slot memtable.Slot) (string, bool, error) {
	if slot.Kind != types.KindPut {
		return "", false, nil
	}
	return slot.Value, true, nil
}

// Put writes key/value into the active MemTable, rotating it to frozen
// and submitting it for flush if this write crosses the size threshold.
func (e *Engine) Put(key, value string) error {
	e.mu.Lock()
	e.active.Put(key, value)
	toFlush := e.maybeRotateLocked()
	e.mu.Unlock()

	return e.flushIfNeeded(toFlush)
}

// Delete overwrites key's slot with a Tombstone, rotating and flushing
// under the same threshold as Put.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	e.active.Delete(key)
	toFlush := e.maybeRotateLocked()
	e.mu.Unlock()

	return e.flushIfNeeded(toFlush)
}

// maybeRotateLocked must be called with e.mu held. If the active table
// has reached the threshold, it swaps in a fresh empty table, freezes
// the old one, and returns it for the caller to hand to the
// FileHandler outside the lock (flush I/O must not block other
// readers/writers touching e.active).
func (e *Engine) maybeRotateLocked() *memtable.Frozen {
	if e.active.Len() < e.maxMemtableSize {
		return nil
	}
	frozen := e.active.Freeze()
	e.frozen = frozen
	e.active = memtable.New()
	return frozen
}

func (e *Engine) flushIfNeeded(frozen *memtable.Frozen) error {
	if frozen == nil {
		return nil
	}
	if err := e.fh.Flush(frozen); err != nil {
		return lumenerr.WrapChannel(err, "engine: flush rotated memtable")
	}

	e.mu.Lock()
	if e.frozen == frozen {
		e.frozen = nil
	}
	e.mu.Unlock()
	return nil
}

// Close waits for any in-flight flush to complete and stops the
// background flush/compaction goroutines. The Engine must not be used
// after Close returns.
func (e *Engine) Close() {
	e.fh.Close()
}

// Stats reports in-memory and per-level bundle counts, used by callers
// to observe compaction pressure.
type Stats struct {
	ActiveEntries int
	FrozenEntries int
	L0            int
	L1            int
	L2            int
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	active := e.active.Len()
	frozen := 0
	if e.frozen != nil {
		frozen = e.frozen.Len()
	}
	e.mu.RUnlock()

	l0, l1, l2 := 0, 0, 0
	for _, b := range e.fh.VisibleBundles() {
		switch b.Level {
		case types.L0:
			l0++
		case types.L1:
			l1++
		case types.L2:
			l2++
		}
	}
	return Stats{ActiveEntries: active, FrozenEntries: frozen, L0: l0, L1: l1, L2: l2}
}
