// Package archive stores audit records in a compact append-only file that
// engine.Replay can consume without a database.
//
// # Format
//
// An archive is a fixed 8-byte header followed by one zstd stream. The
// header is the magic "HYDXARC" and a format version byte. The stream holds
// a CBOR sequence (RFC 8742) of frames, one per record, encoded with Core
// Deterministic Encoding so equal records always produce equal bytes.
//
// Timestamps are encoded as RFC 3339 strings with nanoseconds so replayed
// liveness checks see exactly the recorded instants.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/hydroexec/internal/ir"
)

// FormatVersion is the archive layout version written in the header.
const FormatVersion byte = 1

var magic = []byte("HYDXARC")

// headerLen is the magic plus the version byte.
var headerLen = len(magic) + 1

// ErrBadHeader is returned when a stream does not start with an archive
// header of a supported version.
var ErrBadHeader = errors.New("archive: bad header")

// frame is one archived record.
type frame struct {
	RecordVersion string         `cbor:"v"`
	Record        ir.AuditRecord `cbor:"r"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

func writeHeader(w io.Writer) error {
	hdr := make([]byte, 0, headerLen)
	hdr = append(hdr, magic...)
	hdr = append(hdr, FormatVersion)
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("archive: write header: %w", err)
	}
	return nil
}

func readHeader(r io.Reader) error {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated", ErrBadHeader)
		}
		return fmt.Errorf("archive: read header: %w", err)
	}
	if !bytes.Equal(hdr[:len(magic)], magic) {
		return fmt.Errorf("%w: not an archive", ErrBadHeader)
	}
	if v := hdr[len(magic)]; v != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadHeader, v)
	}
	return nil
}
