// Package lumenerr defines the error taxonomy the core surfaces to
// callers: Io, Decode, Channel and Invariant.
package lumenerr

import (
	"github.com/cockroachdb/errors"
)

// Sentinel markers. Wrap an underlying error with one of the Wrap*
// helpers below and classify it back out with errors.Is.
var (
	Io        = errors.New("lumendb: io error")
	Decode    = errors.New("lumendb: decode error")
	Channel   = errors.New("lumendb: channel error")
	Invariant = errors.New("lumendb: invariant violation")
)

// WrapIo marks err as an Io-class failure (file open/read/write/seek/delete).
func WrapIo(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), Io)
}

// WrapDecode marks err as a Decode-class failure (malformed framing,
// truncated records, unknown kind byte, non-UTF-8 bytes, short bloom
// buffer).
func WrapDecode(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), Decode)
}

// NewDecode builds a Decode-class failure from a message, no underlying cause.
func NewDecode(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), Decode)
}

// WrapChannel marks err as a Channel-class failure (background task
// absent, reply channel dropped).
func WrapChannel(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), Channel)
}

// Invariantf builds a fatal Invariant-class failure: an internal
// invariant has been violated (e.g. a bundle committed with files not
// fully written). Uses AssertionFailedf so it carries an assertion
// report, the way pebble's own invariant violations do.
func Invariantf(format string, args ...any) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), Invariant)
}

// Is reports whether err is marked as belonging to class.
func Is(err, class error) bool {
	return errors.Is(err, class)
}
