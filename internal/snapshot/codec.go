// Package snapshot persists conversation entry stores and reloads them.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hyperjump/docchat/internal/vector"
)

// ErrCorrupt is returned when a stored snapshot cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

const (
	magic   = "DCIX"
	version = uint16(1)

	// maxFieldLen bounds any single length prefix so a damaged header cannot
	// trigger a huge allocation.
	maxFieldLen = 1 << 30
)

// Marshal encodes a store as: magic, version, dimension, count, then per entry
// text length, text, doc id length, doc id and the vector, followed by a CRC-32 of
// everything before it. All integers are little endian.
func Marshal(s *vector.Store) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	w := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	w(version)
	w(uint32(s.Dimension()))
	w(uint32(s.Len()))
	for _, e := range s.Entries() {
		w(uint32(len(e.Text)))
		buf.WriteString(e.Text)
		w(uint32(len(e.DocID)))
		buf.WriteString(e.DocID)
		for _, f := range e.Vector {
			w(math.Float32bits(f))
		}
	}
	w(crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

// Unmarshal decodes data produced by Marshal. Any structural problem, including
// a checksum mismatch or trailing bytes, yields an error wrapping ErrCorrupt.
func Unmarshal(data []byte) (*vector.Store, error) {
	if len(data) < len(magic)+2+4+4+4 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}
	body, tail := data[:len(data)-4], data[len(data)-4:]
	if got, want := crc32.ChecksumIEEE(body), binary.LittleEndian.Uint32(tail); got != want {
		return nil, fmt.Errorf("%w: checksum %08x, expected %08x", ErrCorrupt, got, want)
	}
	if string(body[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	r := bytes.NewReader(body[len(magic):])
	var ver uint16
	var dim, count uint32
	if err := readAll(r, &ver, &dim, &count); err != nil {
		return nil, err
	}
	if ver != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, ver)
	}
	if count > 0 && dim == 0 {
		return nil, fmt.Errorf("%w: %d entries with zero dimension", ErrCorrupt, count)
	}
	if uint64(count)*uint64(dim)*4 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d entries of dimension %d exceed payload", ErrCorrupt, count, dim)
	}

	entries := make([]vector.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		text, err := readString(r)
		if err != nil {
			return nil, err
		}
		docID, err := readString(r)
		if err != nil {
			return nil, err
		}
		vec := make([]float32, dim)
		for j := range vec {
			var bits uint32
			if err := readAll(r, &bits); err != nil {
				return nil, err
			}
			vec[j] = math.Float32frombits(bits)
		}
		entries = append(entries, vector.Entry{Text: text, DocID: docID, Vector: vec})
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}

	s, err := vector.NewStoreFromEntries(int(dim), entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

func readAll(r io.Reader, vals ...any) error {
	for _, v := range vals {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := readAll(r, &n); err != nil {
		return "", err
	}
	if n > maxFieldLen || int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%w: field length %d exceeds payload", ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return string(b), nil
}
