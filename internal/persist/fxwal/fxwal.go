// Package fxwal implements the WAL-backed `.fxwal` persistence format: an
// append-only log of UArr-encoded records framed with a CRC32, replayed
// in sequence to reconstruct the graph.
//
// The binary record framing follows a length-prefixed payload with a
// CRC32 header, the same style an in-memory ring-buffer event queue would
// use, applied here to a file instead of a shared ring buffer.
package fxwal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/danshapiro/fxd/internal/fxerr"
)

var fileMagic = [5]byte{'F', 'X', 'W', 'A', 'L'}

const fileVersion uint16 = 1

// Kind identifies a WAL record's shape.
type Kind uint8

const (
	KindCreate Kind = iota
	KindPatch
	KindLinkAdd
	KindLinkDel
	KindSignal
	KindCheckpoint
)

// Record is one WAL entry.
type Record struct {
	Seq         uint64
	TimestampNS int64
	Kind        Kind
	NodeID      string
	Payload     []byte // UArr-encoded
}

// Writer appends records to a `.fxwal` file, assigning strictly
// increasing sequence numbers.
type Writer struct {
	f       *os.File
	nextSeq uint64
}

// Create opens path for appending, writing the file header if the file
// is new, and positions nextSeq after any existing records.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fxwal: open %s: %w", path, fxerr.IOFailure)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("fxwal: stat %s: %w", path, fxerr.IOFailure)
	}

	w := &Writer{f: f}
	if info.Size() == 0 {
		if err := writeFileHeader(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return w, nil
	}

	records, _, err := readAll(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if len(records) > 0 {
		w.nextSeq = records[len(records)-1].Seq + 1
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("fxwal: seek %s: %w", path, fxerr.IOFailure)
	}
	return w, nil
}

func writeFileHeader(f *os.File) error {
	buf := make([]byte, 7)
	copy(buf[0:5], fileMagic[:])
	binary.LittleEndian.PutUint16(buf[5:7], fileVersion)
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("fxwal: write header: %w", fxerr.IOFailure)
	}
	return nil
}

// Append writes one record: the full record is built in memory, written
// with a single Write call, and synced before Append returns. A crash
// during that write can still leave a truncated record at the tail,
// which Load discards.
func (w *Writer) Append(kind Kind, nodeID string, timestampNS int64, payload []byte) (Record, error) {
	rec := Record{Seq: w.nextSeq, TimestampNS: timestampNS, Kind: kind, NodeID: nodeID, Payload: payload}
	buf := encodeRecord(rec)
	if _, err := w.f.Write(buf); err != nil {
		return Record{}, fmt.Errorf("fxwal: append seq %d: %w", rec.Seq, fxerr.IOFailure)
	}
	if err := w.f.Sync(); err != nil {
		return Record{}, fmt.Errorf("fxwal: sync after seq %d: %w", rec.Seq, fxerr.IOFailure)
	}
	w.nextSeq++
	return rec, nil
}

// Close closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// encodeRecord builds { u64 seq, u64 timestamp_ns, u8 kind, u64
// node_id_len, node_id bytes, u32 payload_len, payload bytes, u32 crc32 }
// with the CRC32 covering every byte before it.
func encodeRecord(rec Record) []byte {
	nodeIDBytes := []byte(rec.NodeID)
	body := make([]byte, 0, 8+8+1+8+len(nodeIDBytes)+4+len(rec.Payload))
	seqBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBuf, rec.Seq)
	body = append(body, seqBuf...)

	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, uint64(rec.TimestampNS))
	body = append(body, tsBuf...)

	body = append(body, byte(rec.Kind))

	idLenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(idLenBuf, uint64(len(nodeIDBytes)))
	body = append(body, idLenBuf...)
	body = append(body, nodeIDBytes...)

	payloadLenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(payloadLenBuf, uint32(len(rec.Payload)))
	body = append(body, payloadLenBuf...)
	body = append(body, rec.Payload...)

	crc := crc32.ChecksumIEEE(body)
	crcBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBuf, crc)
	return append(body, crcBuf...)
}

// Load replays every well-formed record in path. Reading stops at the
// first truncated or CRC-mismatched record: it and everything after it
// are discarded without failing the load, and one warning reports where
// reading stopped. At the tail this is the trace of a torn write from an
// interrupted append.
func Load(path string) ([]Record, []string, error) {
	return readAll(path)
}

func readAll(path string) ([]Record, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("fxwal: open %s: %w", path, fxerr.IOFailure)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header := make([]byte, 7)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, nil, fmt.Errorf("fxwal: read header %s: %w", path, fxerr.CorruptRecord)
	}
	if [5]byte(header[0:5]) != fileMagic {
		return nil, nil, fmt.Errorf("fxwal: %s: %w: bad magic", path, fxerr.CorruptRecord)
	}
	version := binary.LittleEndian.Uint16(header[5:7])
	if version > fileVersion {
		return nil, nil, fmt.Errorf("fxwal: %s: %w: version %d", path, fxerr.SchemaMismatch, version)
	}

	var records []Record
	var warnings []string
	for {
		rec, ok, err := readOneRecord(br)
		if err != nil {
			warnings = append(warnings, err.Error())
			break
		}
		if !ok {
			break // clean EOF
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

// readOneRecord returns ok=false on a clean EOF between records, and an
// error (not ok) when a record header/body/crc was present but truncated
// or mismatched — both are "stop here", but the caller records the latter
// as a warning to distinguish graceful end-of-file from a real crash
// truncation.
func readOneRecord(br *bufio.Reader) (Record, bool, error) {
	fixed := make([]byte, 8+8+1+8)
	n, err := io.ReadFull(br, fixed)
	if err == io.EOF && n == 0 {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("fxwal: truncated record header: %w", fxerr.CorruptRecord)
	}

	seq := binary.LittleEndian.Uint64(fixed[0:8])
	ts := int64(binary.LittleEndian.Uint64(fixed[8:16]))
	kind := Kind(fixed[16])
	idLen := binary.LittleEndian.Uint64(fixed[17:25])

	nodeIDBytes := make([]byte, idLen)
	if _, err := io.ReadFull(br, nodeIDBytes); err != nil {
		return Record{}, false, fmt.Errorf("fxwal: truncated node id (seq %d): %w", seq, fxerr.CorruptRecord)
	}

	payloadLenBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, payloadLenBuf); err != nil {
		return Record{}, false, fmt.Errorf("fxwal: truncated payload length (seq %d): %w", seq, fxerr.CorruptRecord)
	}
	payloadLen := binary.LittleEndian.Uint32(payloadLenBuf)

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		return Record{}, false, fmt.Errorf("fxwal: truncated payload (seq %d): %w", seq, fxerr.CorruptRecord)
	}

	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, crcBuf); err != nil {
		return Record{}, false, fmt.Errorf("fxwal: truncated crc (seq %d): %w", seq, fxerr.CorruptRecord)
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf)

	body := make([]byte, 0, len(fixed)+len(nodeIDBytes)+len(payloadLenBuf)+len(payload))
	body = append(body, fixed...)
	body = append(body, nodeIDBytes...)
	body = append(body, payloadLenBuf...)
	body = append(body, payload...)
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Record{}, false, fmt.Errorf("fxwal: %w: crc mismatch at seq %d", fxerr.CorruptRecord, seq)
	}

	return Record{Seq: seq, TimestampNS: ts, Kind: kind, NodeID: string(nodeIDBytes), Payload: payload}, true, nil
}
