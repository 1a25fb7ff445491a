package deckcode

import (
	"encoding/binary"
	"fmt"
)

// maxListLen bounds list headers so a corrupt count cannot force a huge allocation.
const maxListLen = 1 << 12

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) reserved() (byte, error) {
	if r.remaining() < 1 {
		return 0, &DecodeError{Kind: ErrTruncated, Offset: r.off, Err: fmt.Errorf("missing reserved byte")}
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// varint reads one little-endian base-128 value.
func (r *reader) varint(field string) (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, &DecodeError{Kind: ErrTruncated, Offset: r.off, Err: fmt.Errorf("stream ends inside %s", field)}
	case n < 0:
		return 0, &DecodeError{Kind: ErrTruncated, Offset: r.off, Err: fmt.Errorf("%s overflows 64 bits", field)}
	}
	r.off += n
	return v, nil
}

// list reads a count followed by that many ids.
func (r *reader) list(field string) ([]int, error) {
	n, err := r.varint(field + " count")
	if err != nil {
		return nil, err
	}
	if n > maxListLen || n > uint64(r.remaining()) {
		return nil, &DecodeError{Kind: ErrTruncated, Offset: r.off, Err: fmt.Errorf("%s count %d exceeds remaining input", field, n)}
	}

	ids := make([]int, 0, n)
	for i := uint64(0); i < n; i++ {
		id, err := r.varint(field)
		if err != nil {
			return nil, err
		}
		ids = append(ids, int(id))
	}
	return ids, nil
}
