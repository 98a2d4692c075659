package archive

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/hydroexec/internal/ir"
)

// Writer appends audit records to an archive stream.
// It is safe for concurrent use; records keep the order of Append calls.
type Writer struct {
	mu     sync.Mutex
	zw     *zstd.Encoder
	enc    *cbor.Encoder
	count  int
	closed bool
}

// NewWriter writes the archive header to w and returns a Writer for the
// record stream. Close must be called to flush the stream; it does not
// close w.
func NewWriter(w io.Writer) (*Writer, error) {
	if err := writeHeader(w); err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: zstd writer: %w", err)
	}
	return &Writer{zw: zw, enc: encMode.NewEncoder(zw)}, nil
}

// Append writes one record. It satisfies engine.Recorder.
func (w *Writer) Append(rec ir.AuditRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("archive: append after close")
	}
	if err := w.enc.Encode(frame{RecordVersion: ir.RecordVersion, Record: rec}); err != nil {
		return fmt.Errorf("archive: encode %s/%d: %w", rec.Decision.UnitID, rec.Decision.Seq, err)
	}
	w.count++
	return nil
}

// Count returns the number of records appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and ends the compressed stream. Calling Close twice is a
// no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.zw.Close(); err != nil {
		return fmt.Errorf("archive: flush: %w", err)
	}
	return nil
}
