// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
)

// readBufferSize is the per-read buffer. Increments are emitted as soon as
// any bytes decode, so this is an upper bound, not a batch size.
const readBufferSize = 4096

// ErrClosed is returned when the stream is read after Close.
var ErrClosed = errors.New("stream closed")

// Callback receives one decoded text increment. Increments arrive in server
// order; their concatenation is the full reply.
type Callback func(increment string)

// =============================================================================
// STREAM READER
// =============================================================================

// Reader turns an unframed response body into an ordered sequence of text
// increments.
//
// Decoding is incremental: a multi-byte character split across two reads is
// held until its remaining bytes arrive, instead of being decoded as garbage
// at the boundary. The zero end of the sequence is the transport's
// end-of-stream; there is no in-band sentinel.
type Reader struct {
	body    io.ReadCloser
	decoded io.Reader
	buf     []byte

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder

	closed atomic.Bool
	done   bool
}

// NewReader wraps an open response body. The caller owns nothing else about
// the response; Close releases the transport.
func NewReader(body io.ReadCloser) *Reader {
	// The UTF-8 decoder retains partial multi-byte state between reads and
	// replaces invalid sequences with U+FFFD rather than failing the stream.
	dec := unicode.UTF8.NewDecoder()
	return &Reader{
		body:    body,
		decoded: dec.Reader(body),
		buf:     make([]byte, readBufferSize),
	}
}

// Next returns the next available text increment.
//
// It blocks until at least one decoded byte is available, the stream ends
// (io.EOF), or reading fails. After io.EOF or any error the sequence is
// over; Next must not be called again.
func (r *Reader) Next() (string, error) {
	if r.closed.Load() {
		return "", ErrClosed
	}
	if r.done {
		return "", io.EOF
	}

	for {
		n, err := r.decoded.Read(r.buf)
		if n > 0 {
			inc := string(r.buf[:n])
			r.accumulator.WriteString(inc)
			if err != nil {
				// Deliver the final bytes; the terminal condition is
				// reported on the following call.
				if err == io.EOF {
					r.done = true
					return inc, nil
				}
				r.done = true
				return inc, r.readError(err)
			}
			return inc, nil
		}
		if err != nil {
			r.done = true
			if err == io.EOF {
				return "", io.EOF
			}
			return "", r.readError(err)
		}
		// Zero-byte read without error: the decoder consumed input but has
		// nothing complete to emit yet (e.g. a dangling lead byte). Keep
		// reading.
	}
}

// Process pulls increments until end-of-stream, invoking the callback for
// each one in arrival order. It blocks until the stream completes, reading
// fails, or the context is cancelled.
//
// Process does not close the body; callers should defer Close so abandoning
// consumption always releases the transport.
func (r *Reader) Process(ctx context.Context, callback Callback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		inc, err := r.Next()
		if inc != "" {
			callback(inc)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// A read failure caused by cancellation (the transport tears
			// down the body) is reported as the context error.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// readError wraps a transport failure, normalizing the closed case.
func (r *Reader) readError(err error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return fmt.Errorf("stream read failed: %w", err)
}

// Accumulated returns the concatenation of every increment emitted so far.
// Content consumed before a failure is preserved, never discarded.
func (r *Reader) Accumulated() string {
	return r.accumulator.String()
}

// Close releases the underlying transport. It is safe to call at any point,
// including mid-stream and redundantly, and never discards content already
// consumed.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.body.Close()
}
