// Package uarr implements the compact binary "UArr" value encoding used
// inside WAL records: a fixed-offset field-descriptor table over a packed
// data region, with arrays and objects recursing through a side table of
// nested UArr blocks.
package uarr

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/danshapiro/fxd/internal/fxerr"
	"github.com/danshapiro/fxd/internal/graph"
)

var magic = [4]byte{'U', 'A', 'R', '1'}

const headerSize = 32
const fieldDescSize = 20
const sideEntrySize = 8

const noKey = 0xFFFFFFFF

// header is the fixed 32-byte prefix of every UArr blob.
type header struct {
	version      uint8
	flags        uint8 // 0 = scalar root, 1 = array root, 2 = object root
	fieldCount   uint32
	sideCount    uint32
	schemaOffset uint32
	dataOffset   uint32
	dataLen      uint32
	totalBytes   uint32
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b[0:4], magic[:])
	b[4] = h.version
	b[5] = h.flags
	binary.LittleEndian.PutUint32(b[8:12], h.fieldCount)
	binary.LittleEndian.PutUint32(b[12:16], h.sideCount)
	binary.LittleEndian.PutUint32(b[16:20], h.schemaOffset)
	binary.LittleEndian.PutUint32(b[20:24], h.dataOffset)
	binary.LittleEndian.PutUint32(b[24:28], h.dataLen)
	binary.LittleEndian.PutUint32(b[28:32], h.totalBytes)
	return b
}

func unmarshalHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, fmt.Errorf("uarr: %w: truncated header", fxerr.CorruptRecord)
	}
	if [4]byte(b[0:4]) != magic {
		return header{}, fmt.Errorf("uarr: %w: bad magic", fxerr.CorruptRecord)
	}
	return header{
		version:      b[4],
		flags:        b[5],
		fieldCount:   binary.LittleEndian.Uint32(b[8:12]),
		sideCount:    binary.LittleEndian.Uint32(b[12:16]),
		schemaOffset: binary.LittleEndian.Uint32(b[16:20]),
		dataOffset:   binary.LittleEndian.Uint32(b[20:24]),
		dataLen:      binary.LittleEndian.Uint32(b[24:28]),
		totalBytes:   binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}

// fieldDesc is one field descriptor: (name_hash, type_tag, offset_or_index)
// plus a key_offset extension — name_hash alone is one-way, so an object
// root also needs the original key text to reconstruct its map, stored as
// a length-prefixed string in the data region like any other string
// field.
type fieldDesc struct {
	nameHash      uint64
	typeTag       uint8
	keyOffset     uint32 // noKey for array elements, which are keyed by position
	offsetOrIndex uint32
}

func (f fieldDesc) marshal() []byte {
	b := make([]byte, fieldDescSize)
	binary.LittleEndian.PutUint64(b[0:8], f.nameHash)
	b[8] = f.typeTag
	binary.LittleEndian.PutUint32(b[12:16], f.keyOffset)
	binary.LittleEndian.PutUint32(b[16:20], f.offsetOrIndex)
	return b
}

func unmarshalFieldDesc(b []byte) fieldDesc {
	return fieldDesc{
		nameHash:      binary.LittleEndian.Uint64(b[0:8]),
		typeTag:       b[8],
		keyOffset:     binary.LittleEndian.Uint32(b[12:16]),
		offsetOrIndex: binary.LittleEndian.Uint32(b[16:20]),
	}
}

// typeTag mirrors graph.Kind directly: a narrow enum covering only the
// two numeric widths graph.Value actually carries (int64, float64),
// sufficient for every value this kernel produces.
const (
	tagNone   = uint8(graph.KindNone)
	tagBool   = uint8(graph.KindBool)
	tagInt    = uint8(graph.KindInt)
	tagFloat  = uint8(graph.KindFloat)
	tagString = uint8(graph.KindString)
	tagBytes  = uint8(graph.KindBytes)
	tagArray  = uint8(graph.KindArray)
	tagObject = uint8(graph.KindObject)
)

func isCompoundTag(tag uint8) bool { return tag == tagArray || tag == tagObject }

func nameHashOf(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// Encode packs v into a UArr blob. Handle values must already be dropped
// (graph.Value.DropHandle); Encode returns an error if one is present.
func Encode(v graph.Value) ([]byte, error) {
	return encodeValue(v)
}

func encodeValue(v graph.Value) ([]byte, error) {
	var (
		fields     []fieldDesc
		dataBuf    []byte
		sideBlocks [][]byte
	)

	putScalar := func(tag uint8, payload []byte) fieldDesc {
		off := uint32(len(dataBuf))
		dataBuf = append(dataBuf, payload...)
		return fieldDesc{typeTag: tag, offsetOrIndex: off}
	}

	putCompound := func(child graph.Value) (fieldDesc, error) {
		blob, err := encodeValue(child)
		if err != nil {
			return fieldDesc{}, err
		}
		idx := uint32(len(sideBlocks))
		sideBlocks = append(sideBlocks, blob)
		return fieldDesc{typeTag: uint8(child.Kind), offsetOrIndex: idx}, nil
	}

	encodeOne := func(nameHash uint64, key string, e graph.Value) error {
		var d fieldDesc
		var err error
		switch e.Kind {
		case graph.KindNone:
			d = fieldDesc{typeTag: tagNone}
		case graph.KindBool:
			bv := byte(0)
			if e.Bool {
				bv = 1
			}
			d = putScalar(tagBool, []byte{bv})
		case graph.KindInt:
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(e.Int))
			d = putScalar(tagInt, buf)
		case graph.KindFloat:
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, floatBits(e.Float))
			d = putScalar(tagFloat, buf)
		case graph.KindString:
			d = putScalar(tagString, lengthPrefixed([]byte(e.Str)))
		case graph.KindBytes:
			d = putScalar(tagBytes, lengthPrefixed(e.Bytes))
		case graph.KindArray, graph.KindObject:
			d, err = putCompound(e)
			if err != nil {
				return err
			}
		case graph.KindHandle:
			return fmt.Errorf("uarr: cannot encode a handle value")
		default:
			return fmt.Errorf("uarr: unknown value kind %d", e.Kind)
		}
		d.nameHash = nameHash
		if key == "" {
			d.keyOffset = noKey
		} else {
			d.keyOffset = uint32(len(dataBuf))
			dataBuf = append(dataBuf, lengthPrefixed([]byte(key))...)
		}
		fields = append(fields, d)
		return nil
	}

	switch v.Kind {
	case graph.KindObject:
		for _, k := range sortedKeys(v.Object) {
			if err := encodeOne(nameHashOf(k), k, v.Object[k]); err != nil {
				return nil, err
			}
		}
	case graph.KindArray:
		for i, e := range v.Array {
			if err := encodeOne(uint64(i), "", e); err != nil {
				return nil, err
			}
		}
	case graph.KindHandle:
		return nil, fmt.Errorf("uarr: cannot encode a handle value")
	default:
		if err := encodeOne(0, "", v); err != nil {
			return nil, err
		}
	}

	schema := make([]byte, 0, len(fields)*fieldDescSize)
	for _, f := range fields {
		schema = append(schema, f.marshal()...)
	}

	sideTable := make([]byte, 0, len(sideBlocks)*sideEntrySize)
	var sideData []byte
	for _, blk := range sideBlocks {
		entryOff := uint32(len(sideData))
		entryLen := uint32(len(blk))
		buf := make([]byte, sideEntrySize)
		binary.LittleEndian.PutUint32(buf[0:4], entryOff)
		binary.LittleEndian.PutUint32(buf[4:8], entryLen)
		sideTable = append(sideTable, buf...)
		sideData = append(sideData, blk...)
	}

	h := header{
		version:      1,
		flags:        rootFlag(v.Kind),
		fieldCount:   uint32(len(fields)),
		sideCount:    uint32(len(sideBlocks)),
		schemaOffset: headerSize,
		dataOffset:   headerSize + uint32(len(schema)),
		dataLen:      uint32(len(dataBuf)),
	}
	h.totalBytes = h.dataOffset + h.dataLen + uint32(len(sideTable)) + uint32(len(sideData))

	out := make([]byte, 0, h.totalBytes)
	out = append(out, h.marshal()...)
	out = append(out, schema...)
	out = append(out, dataBuf...)
	out = append(out, sideTable...)
	out = append(out, sideData...)
	return out, nil
}

func rootFlag(k graph.Kind) uint8 {
	switch k {
	case graph.KindArray:
		return 1
	case graph.KindObject:
		return 2
	default:
		return 0
	}
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b)))
	copy(out[4:], b)
	return out
}

func sortedKeys(m map[string]graph.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Decode unpacks a UArr blob produced by Encode.
func Decode(b []byte) (graph.Value, error) {
	h, err := unmarshalHeader(b)
	if err != nil {
		return graph.None(), err
	}
	if uint32(len(b)) < h.totalBytes {
		return graph.None(), fmt.Errorf("uarr: %w: expected %d bytes, have %d", fxerr.CorruptRecord, h.totalBytes, len(b))
	}

	schema := b[h.schemaOffset:h.dataOffset]
	if uint32(len(schema)) != h.fieldCount*fieldDescSize {
		return graph.None(), fmt.Errorf("uarr: %w: schema region size mismatch", fxerr.CorruptRecord)
	}
	dataRegion := b[h.dataOffset : h.dataOffset+h.dataLen]
	sideTableOffset := h.dataOffset + h.dataLen
	sideTable := b[sideTableOffset : sideTableOffset+h.sideCount*sideEntrySize]
	sideDataStart := sideTableOffset + h.sideCount*sideEntrySize
	sideData := b[sideDataStart:]

	readString := func(off uint32) (string, error) {
		if uint64(off)+4 > uint64(len(dataRegion)) {
			return "", fmt.Errorf("uarr: %w: string offset out of range", fxerr.CorruptRecord)
		}
		n := binary.LittleEndian.Uint32(dataRegion[off : off+4])
		start := off + 4
		if uint64(start)+uint64(n) > uint64(len(dataRegion)) {
			return "", fmt.Errorf("uarr: %w: string length out of range", fxerr.CorruptRecord)
		}
		return string(dataRegion[start : start+n]), nil
	}

	decodeSide := func(idx uint32) (graph.Value, error) {
		if idx >= h.sideCount {
			return graph.None(), fmt.Errorf("uarr: %w: side-table index out of range", fxerr.CorruptRecord)
		}
		entry := sideTable[idx*sideEntrySize : idx*sideEntrySize+sideEntrySize]
		off := binary.LittleEndian.Uint32(entry[0:4])
		length := binary.LittleEndian.Uint32(entry[4:8])
		if uint64(off)+uint64(length) > uint64(len(sideData)) {
			return graph.None(), fmt.Errorf("uarr: %w: side block out of range", fxerr.CorruptRecord)
		}
		return Decode(sideData[off : off+length])
	}

	decodeScalar := func(d fieldDesc) (graph.Value, error) {
		switch d.typeTag {
		case tagNone:
			return graph.None(), nil
		case tagBool:
			if d.offsetOrIndex >= uint32(len(dataRegion)) {
				return graph.None(), fmt.Errorf("uarr: %w: bool offset out of range", fxerr.CorruptRecord)
			}
			return graph.Bool(dataRegion[d.offsetOrIndex] != 0), nil
		case tagInt:
			buf := dataRegion[d.offsetOrIndex : d.offsetOrIndex+8]
			return graph.Int(int64(binary.LittleEndian.Uint64(buf))), nil
		case tagFloat:
			buf := dataRegion[d.offsetOrIndex : d.offsetOrIndex+8]
			return graph.Float(floatFromBits(binary.LittleEndian.Uint64(buf))), nil
		case tagString:
			s, err := readString(d.offsetOrIndex)
			return graph.String(s), err
		case tagBytes:
			n := binary.LittleEndian.Uint32(dataRegion[d.offsetOrIndex : d.offsetOrIndex+4])
			start := d.offsetOrIndex + 4
			out := make([]byte, n)
			copy(out, dataRegion[start:start+n])
			return graph.Bytes(out), nil
		default:
			return graph.None(), fmt.Errorf("uarr: %w: unknown scalar type tag %d", fxerr.CorruptRecord, d.typeTag)
		}
	}

	descs := make([]fieldDesc, h.fieldCount)
	for i := uint32(0); i < h.fieldCount; i++ {
		descs[i] = unmarshalFieldDesc(schema[i*fieldDescSize : i*fieldDescSize+fieldDescSize])
	}

	decodeField := func(d fieldDesc) (graph.Value, error) {
		if isCompoundTag(d.typeTag) {
			return decodeSide(d.offsetOrIndex)
		}
		return decodeScalar(d)
	}

	switch h.flags {
	case 1: // array
		out := make([]graph.Value, h.fieldCount)
		for i, d := range descs {
			v, err := decodeField(d)
			if err != nil {
				return graph.None(), err
			}
			out[i] = v
		}
		return graph.Array(out), nil
	case 2: // object
		out := make(map[string]graph.Value, h.fieldCount)
		for _, d := range descs {
			key, err := readString(d.keyOffset)
			if err != nil {
				return graph.None(), err
			}
			v, err := decodeField(d)
			if err != nil {
				return graph.None(), err
			}
			out[key] = v
		}
		return graph.Object(out), nil
	default: // scalar
		if h.fieldCount == 0 {
			return graph.None(), nil
		}
		return decodeField(descs[0])
	}
}
