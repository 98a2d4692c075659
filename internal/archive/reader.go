package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/hydroexec/internal/ir"
)

// Reader iterates the records of an archive stream.
type Reader struct {
	zr  *zstd.Decoder
	dec *cbor.Decoder
}

// NewReader checks the archive header and prepares to decode records.
// Close releases the decompressor; it does not close r.
func NewReader(r io.Reader) (*Reader, error) {
	if err := readHeader(r); err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("archive: zstd reader: %w", err)
	}
	return &Reader{zr: zr, dec: decMode.NewDecoder(zr)}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (ir.AuditRecord, error) {
	var f frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return ir.AuditRecord{}, io.EOF
		}
		return ir.AuditRecord{}, fmt.Errorf("archive: decode: %w", err)
	}
	if f.RecordVersion != ir.RecordVersion {
		return ir.AuditRecord{}, fmt.Errorf("archive: record version %q, want %q", f.RecordVersion, ir.RecordVersion)
	}
	return f.Record, nil
}

// Close releases the decompressor.
func (r *Reader) Close() {
	r.zr.Close()
}

// ReadAll drains r and returns its records in archive order.
func ReadAll(r *Reader) ([]ir.AuditRecord, error) {
	recs := []ir.AuditRecord{}
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

// ReadFile reads every record of the archive at path.
func ReadFile(path string) ([]ir.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	recs, err := ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
