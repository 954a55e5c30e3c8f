// Package registry tracks committed SST bundles per level, hands out
// uncommitted bundle identities, commits them atomically, and reports
// when a level has crossed its compaction threshold.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/types"
)

// Bundle is a committed, visible SST triple.
type Bundle struct {
	ID        uuid.UUID
	Level     types.Level
	DataPath  string
	IndexPath string
	BloomPath string
}

// Uncommitted is the capability token returned by NewUncommitted: it
// carries the three paths the caller must write before handing it back
// to Commit. Holding one grants the right to write those paths; it is
// not visible to readers until committed.
type Uncommitted struct {
	bundle Bundle
}

func (u Uncommitted) DataPath() string  { return u.bundle.DataPath }
func (u Uncommitted) IndexPath() string { return u.bundle.IndexPath }
func (u Uncommitted) BloomPath() string { return u.bundle.BloomPath }
func (u Uncommitted) Level() types.Level { return u.bundle.Level }

// Registry owns the three per-level sequences of committed bundles and
// the base directory they live in, guarded by a single reader-writer
// lock.
type Registry struct {
	mu  sync.RWMutex
	dir string

	l0 []Bundle
	l1 []Bundle
	l2 []Bundle

	// nextSeq tracks, per level, the next sequence number to hand out.
	// It only ever increases: reusing a seq after its bundle is removed
	// by compaction would let a new bundle's data/index/bloom files
	// (created fresh via O_EXCL, normally a guard against clobbering a
	// live bundle) collide in name with one still referenced by a
	// stale directory listing or an in-flight reader that opened the
	// old bundle just before it was removed.
	nextSeq [3]int
}

var bundleFileNamePattern = regexp.MustCompile(`^(L[012])-(data|index|bloom)-(\d+)\.db$`)

// Open creates dir if missing, or rebuilds the registry's in-memory
// state from it by scanning for existing bundle files. A data/index/
// bloom triple missing any member is treated as the remnant of a crash
// mid-flush and its surviving files are deleted; only complete triples
// are restored.
func Open(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, lumenerr.WrapIo(err, "registry: create directory %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, lumenerr.WrapIo(err, "registry: read directory %s", dir)
	}

	type key struct {
		level types.Level
		seq   int
	}
	triples := map[key]map[string]string{}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		matches := bundleFileNamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		level, ok := parseLevel(matches[1])
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(matches[3])
		if err != nil {
			continue
		}
		k := key{level: level, seq: seq}
		if triples[k] == nil {
			triples[k] = map[string]string{}
		}
		triples[k][matches[2]] = filepath.Join(dir, entry.Name())
	}

	r := &Registry{dir: dir}
	type rebuilt struct {
		seq    int
		bundle Bundle
	}
	byLevel := map[types.Level][]rebuilt{}

	for k, files := range triples {
		data, hasData := files["data"]
		index, hasIndex := files["index"]
		bloomPath, hasBloom := files["bloom"]
		if hasData && hasIndex && hasBloom {
			byLevel[k.level] = append(byLevel[k.level], rebuilt{
				seq: k.seq,
				bundle: Bundle{
					ID:        uuid.New(),
					Level:     k.level,
					DataPath:  data,
					IndexPath: index,
					BloomPath: bloomPath,
				},
			})
			continue
		}
		for _, path := range files {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, lumenerr.WrapIo(err, "registry: remove half-written bundle file %s", path)
			}
		}
	}

	for level, list := range byLevel {
		sort.Slice(list, func(i, j int) bool { return list[i].seq > list[j].seq })
		bundles := make([]Bundle, len(list))
		for i, rb := range list {
			bundles[i] = rb.bundle
			if rb.seq+1 > r.nextSeq[levelIndex(level)] {
				r.nextSeq[levelIndex(level)] = rb.seq + 1
			}
		}
		switch level {
		case types.L0:
			r.l0 = bundles
		case types.L1:
			r.l1 = bundles
		case types.L2:
			r.l2 = bundles
		}
	}

	return r, nil
}

func levelIndex(level types.Level) int {
	switch level {
	case types.L0:
		return 0
	case types.L1:
		return 1
	default:
		return 2
	}
}

func parseLevel(s string) (types.Level, bool) {
	switch s {
	case "L0":
		return types.L0, true
	case "L1":
		return types.L1, true
	case "L2":
		return types.L2, true
	default:
		return 0, false
	}
}

func (r *Registry) sequence(level types.Level) *[]Bundle {
	switch level {
	case types.L0:
		return &r.l0
	case types.L1:
		return &r.l1
	default:
		return &r.l2
	}
}

// NewUncommitted computes collision-free paths for a fresh bundle at
// level and returns the capability token to write them. File names
// follow the "{LEVEL}-{kind}-{seq}.db" scheme, where seq is a per-level
// counter that only ever increases, so a seq is never reused even
// after the bundle that held it is compacted away.
func (r *Registry) NewUncommitted(level types.Level) Uncommitted {
	r.mu.Lock()
	seq := r.nextSeq[levelIndex(level)]
	r.nextSeq[levelIndex(level)]++
	r.mu.Unlock()

	return Uncommitted{bundle: Bundle{
		ID:        uuid.New(),
		Level:     level,
		DataPath:  r.path(level, "data", seq),
		IndexPath: r.path(level, "index", seq),
		BloomPath: r.path(level, "bloom", seq),
	}}
}

func (r *Registry) path(level types.Level, kind string, seq int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s-%d.db", level, kind, seq))
}

// Commit makes an uncommitted bundle visible by inserting it at the
// front of its level's sequence (newest-first), and reports whether the
// level has crossed its compaction threshold. Commit first verifies all
// three of the bundle's files exist on disk; a missing file means the
// writer half-failed without surfacing an error, which would otherwise
// make a torn bundle visible to readers, so this is a fatal Invariant
// violation rather than a recoverable one.
func (r *Registry) Commit(u Uncommitted) (shouldCompact bool, err error) {
	for _, path := range []string{u.bundle.DataPath, u.bundle.IndexPath, u.bundle.BloomPath} {
		if _, statErr := os.Stat(path); statErr != nil {
			return false, lumenerr.Invariantf("registry: commit of bundle with missing file %s: %v", path, statErr)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seqPtr := r.sequence(u.bundle.Level)
	*seqPtr = append([]Bundle{u.bundle}, *seqPtr...)

	threshold, compactable := u.bundle.Level.CompactionThreshold()
	if !compactable {
		return false, nil
	}
	return len(*seqPtr) >= threshold, nil
}

// RemoveBundles removes every bundle whose ID is in ids from its level's
// sequence, then deletes all three files of each removed bundle from
// disk. List mutation happens under the write lock; file deletion
// happens after it is released.
func (r *Registry) RemoveBundles(ids map[uuid.UUID]bool) error {
	if len(ids) == 0 {
		return nil
	}

	r.mu.Lock()
	var toDelete []Bundle
	for _, seqPtr := range []*[]Bundle{&r.l0, &r.l1, &r.l2} {
		kept := (*seqPtr)[:0:0]
		for _, b := range *seqPtr {
			if ids[b.ID] {
				toDelete = append(toDelete, b)
			} else {
				kept = append(kept, b)
			}
		}
		*seqPtr = kept
	}
	r.mu.Unlock()

	for _, b := range toDelete {
		for _, path := range []string{b.BloomPath, b.IndexPath, b.DataPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return lumenerr.WrapIo(err, "registry: remove bundle file %s", path)
			}
		}
	}
	return nil
}

// IterVisible returns a snapshot of every committed bundle in global
// recency order: L0 front-to-back, then L1, then L2.
func (r *Registry) IterVisible() []Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Bundle, 0, len(r.l0)+len(r.l1)+len(r.l2))
	out = append(out, r.l0...)
	out = append(out, r.l1...)
	out = append(out, r.l2...)
	return out
}

// Snapshot returns a copy of one level's sequence under a read lock, for
// the Compactor, which must then release the lock before doing any I/O.
func (r *Registry) Snapshot(level types.Level) []Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := *r.sequence(level)
	out := make([]Bundle, len(src))
	copy(out, src)
	return out
}

// Stats reports the number of committed bundles per level.
func (r *Registry) Stats() (l0, l1, l2 int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.l0), len(r.l1), len(r.l2)
}
