// Package sst writes and reads the three-file SST bundle: compressed
// data blocks, a sparse index, and a Bloom filter.
package sst

import (
	"iter"
	"os"

	"github.com/ravipatel/lumendb/bloom"
	"github.com/ravipatel/lumendb/codec"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/memtable"
)

// Write serializes records (already in ascending key order, e.g. from
// memtable.Frozen.Iterator) into the three files at dataPath,
// indexPath, and bloomPath. All three are created fresh (O_EXCL); the
// caller owns choosing collision-free paths. Write is not atomic across
// the three files by itself — the registry only makes a bundle visible
// after a successful Write.
func Write(dataPath, indexPath, bloomPath string, records iter.Seq[memtable.Record]) error {
	dataFile, err := createNew(dataPath)
	if err != nil {
		return err
	}
	defer dataFile.Close()

	indexFile, err := createNew(indexPath)
	if err != nil {
		return err
	}
	defer indexFile.Close()

	filter := bloom.NewDefault()
	enc := codec.NewBlockEncoder()
	var blockOffset uint64
	firstInBlock := true

	flush := func() error {
		compressed, err := enc.Finish()
		if err != nil {
			return err
		}
		n, err := codec.WriteBlockFrame(dataFile, compressed)
		if err != nil {
			return err
		}
		blockOffset += uint64(n)
		firstInBlock = true
		return nil
	}

	for rec := range records {
		if firstInBlock {
			if err := codec.EncodeIndexEntry(indexFile, codec.IndexEntry{Key: rec.Key, BlockOffset: blockOffset}); err != nil {
				return err
			}
			firstInBlock = false
		}

		codecRec := codec.Record{Key: rec.Key, Kind: rec.Slot.Kind, Value: rec.Slot.Value}
		if err := codec.EncodeRecord(enc, codecRec); err != nil {
			return err
		}
		filter.AddKey(rec.Key)

		if enc.CompressedLen() >= codec.BlockThreshold {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if !firstInBlock {
		if err := flush(); err != nil {
			return err
		}
	}

	if _, err := bloomFile(bloomPath, filter); err != nil {
		return err
	}

	return nil
}

func createNew(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, lumenerr.WrapIo(err, "sst: create %s", path)
	}
	return f, nil
}

func bloomFile(path string, filter *bloom.Filter) (int, error) {
	f, err := createNew(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := f.Write(filter.Marshal())
	if err != nil {
		return 0, lumenerr.WrapIo(err, "sst: write bloom file %s", path)
	}
	return n, nil
}
