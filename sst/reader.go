package sst

import (
	"bytes"
	"io"
	"os"

	"github.com/ravipatel/lumendb/bloom"
	"github.com/ravipatel/lumendb/codec"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/types"
)

// Reader answers point lookups against one committed bundle: a Bloom
// check, then (only once that passes) a sparse-index scan to find a
// candidate block, then a block decompress-and-scan. Only the Bloom
// filter is loaded eagerly; the index and data files are read lazily,
// and only for bundles the Bloom filter does not reject.
type Reader struct {
	dataPath  string
	indexPath string
	filter    *bloom.Filter
}

// OpenReader loads a bundle's Bloom filter into memory and prepares to
// serve Get against its index and data files. The index file is not
// read here: spec.md §4.8's read path consults the Bloom filter first
// and only loads the index for bundles it does not reject.
func OpenReader(dataPath, indexPath, bloomPath string) (*Reader, error) {
	filter, err := readBloomFile(bloomPath)
	if err != nil {
		return nil, err
	}
	return &Reader{dataPath: dataPath, indexPath: indexPath, filter: filter}, nil
}

func readBloomFile(path string) (*bloom.Filter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, lumenerr.WrapIo(err, "sst: read bloom file %s", path)
	}
	return bloom.Unmarshal(raw)
}

func readIndexFile(path string) ([]codec.IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lumenerr.WrapIo(err, "sst: open index file %s", path)
	}
	defer f.Close()

	var entries []codec.IndexEntry
	for {
		e, err := codec.DecodeIndexEntry(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// MayContain is a cheap, one-sided pre-check: false means the key is
// certainly absent from this bundle and the data/index files need not
// be touched.
func (r *Reader) MayContain(key string) bool {
	return r.filter.MayContain(key)
}

// candidateOffset loads the index file and finds the largest index key
// that is ≤ the search key. If no such entry exists (the search key
// precedes every block's first key), there is no candidate block and
// the key cannot be present. Loading the index is deferred to this
// call so a Bloom-rejected bundle never touches its index file.
func (r *Reader) candidateOffset(key string) (uint64, bool, error) {
	index, err := readIndexFile(r.indexPath)
	if err != nil {
		return 0, false, err
	}

	found := false
	var offset uint64
	for _, e := range index {
		if e.Key > key {
			break
		}
		offset = e.BlockOffset
		found = true
	}
	return offset, found, nil
}

// Get looks up key in this bundle. ok is false if the key is not
// present, or resolves to a tombstone (reported distinctly via
// GetSlot, which Engine.Get needs to stop the newest-first scan rather
// than falling through to an older bundle's stale value). A decode
// error encountered mid-scan is treated as end-of-records for this
// bundle rather than a fatal error (a defensive read of partial
// files); Get returns ("", false, nil) in that case.
func (r *Reader) Get(key string) (value string, ok bool, err error) {
	slot, found, err := r.GetSlot(key)
	if err != nil || !found {
		return "", false, err
	}
	if slot.Kind != types.KindPut {
		return "", false, nil
	}
	return slot.Value, true, nil
}

// GetSlot looks up key and, if present in this bundle, returns its
// slot (Put or Tombstone) along with found=true. found=false means the
// key does not appear in this bundle at all.
func (r *Reader) GetSlot(key string) (slot memtable.Slot, found bool, err error) {
	if !r.MayContain(key) {
		return memtable.Slot{}, false, nil
	}
	offset, candidate, err := r.candidateOffset(key)
	if err != nil {
		return memtable.Slot{}, false, err
	}
	if !candidate {
		return memtable.Slot{}, false, nil
	}

	f, err := os.Open(r.dataPath)
	if err != nil {
		return memtable.Slot{}, false, lumenerr.WrapIo(err, "sst: open data file %s", r.dataPath)
	}
	defer f.Close()

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return memtable.Slot{}, false, lumenerr.WrapIo(err, "sst: seek data file %s", r.dataPath)
	}

	compressed, err := codec.ReadBlockFrame(f)
	if err != nil {
		if err == io.EOF || lumenerr.Is(err, lumenerr.Decode) {
			return memtable.Slot{}, false, nil
		}
		return memtable.Slot{}, false, err
	}
	raw, err := codec.DecompressBlock(compressed)
	if err != nil {
		return memtable.Slot{}, false, nil
	}

	body := bytes.NewReader(raw)
	for {
		rec, err := codec.DecodeRecord(body)
		if err == io.EOF {
			return memtable.Slot{}, false, nil
		}
		if err != nil {
			// Malformed tail of a partially written block: stop scanning
			// this block rather than failing the whole lookup.
			return memtable.Slot{}, false, nil
		}
		if rec.Key == key {
			return memtable.Slot{Kind: rec.Kind, Value: rec.Value}, true, nil
		}
	}
}

// LoadMemTable decodes an entire data file, block by block, back into
// an in-memory MemTable. Used during compaction to reconstruct a
// bundle's contents as a merge base or input.
func LoadMemTable(dataPath string) (*memtable.MemTable, error) {
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, lumenerr.WrapIo(err, "sst: open data file %s", dataPath)
	}
	defer f.Close()

	m := memtable.New()
	for {
		compressed, err := codec.ReadBlockFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		raw, err := codec.DecompressBlock(compressed)
		if err != nil {
			break
		}
		body := bytes.NewReader(raw)
		for {
			rec, err := codec.DecodeRecord(body)
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			if rec.Kind == types.KindPut {
				m.Put(rec.Key, rec.Value)
			} else {
				m.Delete(rec.Key)
			}
		}
	}
	return m, nil
}
