// Package codec implements the byte-exact wire format for key-value
// records, sparse-index records, and the compressed block framing that
// holds them.
//
// All integers are big-endian, unsigned 64-bit unless stated otherwise.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/types"
)

// BlockThreshold is the approximate number of compressed bytes after
// which a block is flushed.
const BlockThreshold = 4096

// Record is a single decoded key-value (or tombstone) entry.
type Record struct {
	Key   string
	Kind  types.Kind
	Value string // empty and meaningless when Kind == KindTombstone
}

// EncodeRecord writes one key-value record:
// u64 key_len · key_bytes · u8 kind · [u64 value_len · value_bytes if kind=1].
func EncodeRecord(w io.Writer, r Record) error {
	if err := writeLenPrefixed(w, r.Key); err != nil {
		return lumenerr.WrapIo(err, "codec: write record key")
	}
	if _, err := w.Write([]byte{byte(r.Kind)}); err != nil {
		return lumenerr.WrapIo(err, "codec: write record kind")
	}
	if r.Kind == types.KindPut {
		if err := writeLenPrefixed(w, r.Value); err != nil {
			return lumenerr.WrapIo(err, "codec: write record value")
		}
	}
	return nil
}

// DecodeRecord reads one key-value record from r. A clean io.EOF (no
// bytes consumed) signals there are no more records; any other failure
// is returned as a Decode-class error, including a truncated record or
// an unrecognized kind byte.
func DecodeRecord(r io.Reader) (Record, error) {
	key, err := readLenPrefixed(r, true)
	if err != nil {
		return Record{}, err
	}

	var kindByte [1]byte
	if _, err := io.ReadFull(r, kindByte[:]); err != nil {
		return Record{}, lumenerr.WrapDecode(err, "codec: truncated record kind for key %q", key)
	}
	kind := types.Kind(kindByte[0])
	if !kind.Valid() {
		return Record{}, lumenerr.NewDecode("codec: unknown record kind %d", kindByte[0])
	}

	rec := Record{Key: key, Kind: kind}
	if kind == types.KindPut {
		value, err := readLenPrefixed(r, false)
		if err != nil {
			return Record{}, err
		}
		rec.Value = value
	}
	return rec, nil
}

// IndexEntry is a sparse-index record: a block's first key and its byte
// offset in the data file (pointing at the block's length prefix).
type IndexEntry struct {
	Key         string
	BlockOffset uint64
}

// EncodeIndexEntry writes u64 key_len · key_bytes · u64 block_offset.
func EncodeIndexEntry(w io.Writer, e IndexEntry) error {
	if err := writeLenPrefixed(w, e.Key); err != nil {
		return lumenerr.WrapIo(err, "codec: write index key")
	}
	if err := binary.Write(w, binary.BigEndian, e.BlockOffset); err != nil {
		return lumenerr.WrapIo(err, "codec: write index offset")
	}
	return nil
}

// DecodeIndexEntry reads one index record. A clean io.EOF signals the
// index is exhausted.
func DecodeIndexEntry(r io.Reader) (IndexEntry, error) {
	key, err := readLenPrefixed(r, true)
	if err != nil {
		return IndexEntry{}, err
	}
	var offsetBuf [8]byte
	if _, err := io.ReadFull(r, offsetBuf[:]); err != nil {
		return IndexEntry{}, lumenerr.WrapDecode(err, "codec: truncated index offset for key %q", key)
	}
	return IndexEntry{Key: key, BlockOffset: binary.BigEndian.Uint64(offsetBuf[:])}, nil
}

// WriteBlockFrame writes u64 compressed_len · compressed_bytes and
// returns the total number of bytes written (the framed length).
func WriteBlockFrame(w io.Writer, compressed []byte) (int, error) {
	if err := binary.Write(w, binary.BigEndian, uint64(len(compressed))); err != nil {
		return 0, lumenerr.WrapIo(err, "codec: write block length")
	}
	n, err := w.Write(compressed)
	if err != nil {
		return 0, lumenerr.WrapIo(err, "codec: write block body")
	}
	return 8 + n, nil
}

// ReadBlockFrame reads one framed block: its length prefix and that many
// compressed bytes. A clean io.EOF (no bytes consumed) signals the data
// file is exhausted.
func ReadBlockFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, lumenerr.WrapDecode(err, "codec: truncated block length prefix")
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, lumenerr.WrapDecode(err, "codec: truncated block body (want %d bytes)", n)
	}
	return body, nil
}

// DecompressBlock gzip-decompresses a single framed block's body into
// the concatenated key-value records it holds.
func DecompressBlock(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, lumenerr.WrapDecode(err, "codec: open gzip block")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, lumenerr.WrapDecode(err, "codec: decompress gzip block")
	}
	return out, nil
}

func writeLenPrefixed(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// readLenPrefixed reads a u64 length prefix followed by that many bytes,
// validating the bytes as UTF-8. If eofOK is true, a clean io.EOF while
// reading the length prefix is returned as-is (signals end of stream);
// otherwise it is a Decode-class error (a value must follow a kind byte
// that promised one).
func readLenPrefixed(r io.Reader, eofOK bool) (string, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF && eofOK {
			return "", io.EOF
		}
		return "", lumenerr.WrapDecode(err, "codec: truncated length prefix")
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", lumenerr.WrapDecode(err, "codec: truncated value (want %d bytes)", n)
	}
	if !utf8.Valid(buf) {
		return "", lumenerr.NewDecode("codec: non-UTF-8 bytes in length-prefixed field")
	}
	return string(buf), nil
}
