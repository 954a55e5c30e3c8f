package codec

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
	"github.com/ravipatel/lumendb/lumenerr"
)

// BlockEncoder accumulates encoded records into a single gzip stream and
// reports when the compressed output has crossed BlockThreshold, so the
// caller knows when to finish the block and start a new one.
type BlockEncoder struct {
	zipped bytes.Buffer
	zw     *gzip.Writer
}

// NewBlockEncoder starts a fresh block.
func NewBlockEncoder() *BlockEncoder {
	return (&BlockEncoder{}).reset()
}

func (e *BlockEncoder) reset() *BlockEncoder {
	e.zipped.Reset()
	e.zw = gzip.NewWriter(&e.zipped)
	return e
}

// Write feeds raw (pre-compression) bytes into the current block.
func (e *BlockEncoder) Write(p []byte) (int, error) {
	n, err := e.zw.Write(p)
	if err != nil {
		return n, lumenerr.WrapIo(err, "codec: write to block encoder")
	}
	return n, nil
}

// CompressedLen is an approximation of the compressed size produced so
// far: it flushes the underlying gzip writer's internal buffers without
// closing the stream, so the caller can compare against BlockThreshold.
func (e *BlockEncoder) CompressedLen() int {
	_ = e.zw.Flush()
	return e.zipped.Len()
}

// Finish closes the gzip stream and returns the compressed bytes,
// resetting the encoder for the next block.
func (e *BlockEncoder) Finish() ([]byte, error) {
	if err := e.zw.Close(); err != nil {
		return nil, lumenerr.WrapIo(err, "codec: close block encoder")
	}
	out := make([]byte, e.zipped.Len())
	copy(out, e.zipped.Bytes())
	e.reset()
	return out, nil
}
