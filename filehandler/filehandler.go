// Package filehandler owns the BundleRegistry and serializes flush and
// compaction work onto two background goroutines draining bounded
// channels: one request/reply channel for flushes, one signal channel
// for compaction, with a drain-then-close discipline on Close.
package filehandler

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ravipatel/lumendb/compaction"
	"github.com/ravipatel/lumendb/lumenerr"
	"github.com/ravipatel/lumendb/memtable"
	"github.com/ravipatel/lumendb/registry"
	"github.com/ravipatel/lumendb/sst"
	"github.com/ravipatel/lumendb/types"
)

var errClosed = errors.New("filehandler: closed")

type flushRequest struct {
	table *memtable.Frozen
	reply chan error
}

// FileHandler owns the registry and runs the flush and compaction
// background goroutines.
type FileHandler struct {
	registry *registry.Registry

	flushCh   chan *flushRequest
	compactCh chan struct{}

	flushDone   chan struct{}
	compactDone chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup // in-flight Flush callers, so Close can wait them out
}

// New starts the flush and compaction goroutines over reg.
func New(reg *registry.Registry) *FileHandler {
	fh := &FileHandler{
		registry:    reg,
		flushCh:     make(chan *flushRequest, 1),
		compactCh:   make(chan struct{}, 1),
		flushDone:   make(chan struct{}),
		compactDone: make(chan struct{}),
	}

	go fh.flushLoop()
	go fh.compactionLoop()

	return fh
}

// Flush hands table to the flush goroutine and awaits its reply. Every
// frozen table is flushed to L0; the flush queue's capacity of 1 means
// a second call blocks until the first's reply is sent, the natural
// backpressure since the Engine only ever freezes one table at a time.
func (fh *FileHandler) Flush(table *memtable.Frozen) error {
	fh.mu.Lock()
	if fh.closed {
		fh.mu.Unlock()
		return lumenerr.WrapChannel(errClosed, "filehandler: flush requested after Close")
	}
	fh.wg.Add(1)
	fh.mu.Unlock()
	defer fh.wg.Done()

	req := &flushRequest{table: table, reply: make(chan error, 1)}
	fh.flushCh <- req
	return <-req.reply
}

// VisibleBundles returns a snapshot of every committed bundle, used by
// Engine.Get to scan disk after the in-memory tables miss.
func (fh *FileHandler) VisibleBundles() []registry.Bundle {
	return fh.registry.IterVisible()
}

// Close waits for any in-flight Flush call to return, then stops both
// background goroutines.
func (fh *FileHandler) Close() {
	fh.mu.Lock()
	if fh.closed {
		fh.mu.Unlock()
		return
	}
	fh.closed = true
	fh.mu.Unlock()

	fh.wg.Wait()
	close(fh.flushCh)
	<-fh.flushDone
	close(fh.compactCh)
	<-fh.compactDone
}

func (fh *FileHandler) flushLoop() {
	defer close(fh.flushDone)

	for req := range fh.flushCh {
		shouldCompact, err := sst.Flush(fh.registry, types.L0, req.table.Iterator())
		if err == nil && shouldCompact {
			select {
			case fh.compactCh <- struct{}{}:
			default:
				// A compaction signal is already pending; collapsing
				// repeated signals into one run is safe since a run
				// always drains every bundle currently over threshold.
			}
		}
		req.reply <- err
	}
}

func (fh *FileHandler) compactionLoop() {
	defer close(fh.compactDone)

	for range fh.compactCh {
		if err := compaction.Run(fh.registry); err != nil {
			slog.Error("background compaction failed, will retry next signal", "error", err)
		}
	}
}
