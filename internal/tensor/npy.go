package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DType is a little-endian .npy element type descriptor.
type DType string

// Supported element types.
const (
	Int32   DType = "<i4"
	Float32 DType = "<f4"
)

func (d DType) size() int {
	switch d {
	case Int32, Float32:
		return 4
	default:
		return 0
	}
}

const (
	npyMagic     = "\x93NUMPY"
	npyAlignment = 64
)

// npyHeader builds a version 1.0 header whose total length is a multiple of 64.
func npyHeader(dtype DType, shape []int) []byte {
	dims := make([]string, len(shape))
	for i, n := range shape {
		dims[i] = strconv.Itoa(n)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dtype, shapeStr)

	// magic(6) + version(2) + header length(2) + dict + padding + '\n'
	prefix := len(npyMagic) + 4
	total := prefix + len(dict) + 1
	if rem := total % npyAlignment; rem != 0 {
		total += npyAlignment - rem
	}
	headerLen := total - prefix

	buf := make([]byte, 0, total)
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(headerLen))
	buf = append(buf, dict...)
	for len(buf) < total-1 {
		buf = append(buf, ' ')
	}
	return append(buf, '\n')
}

// Array is a fixed-shape, C-ordered .npy file opened for random-access
// writes. The data region starts zero-filled.
type Array struct {
	file       *os.File
	path       string
	dtype      DType
	shape      []int
	dataOffset int64
	elems      int64
}

// CreateArray creates (or truncates) path as a zero-filled .npy array.
func CreateArray(path string, dtype DType, shape ...int) (*Array, error) {
	if dtype.size() == 0 {
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	elems := int64(1)
	for _, n := range shape {
		if n < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		elems *= int64(n)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	header := npyHeader(dtype, shape)
	if _, err := f.WriteAt(header, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}

	size := int64(len(header)) + elems*int64(dtype.size())
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("allocate %s: %w", path, err)
	}

	return &Array{
		file:       f,
		path:       path,
		dtype:      dtype,
		shape:      append([]int(nil), shape...),
		dataOffset: int64(len(header)),
		elems:      elems,
	}, nil
}

// Shape returns the array dimensions.
func (a *Array) Shape() []int {
	return append([]int(nil), a.shape...)
}

// WriteInt32s writes values starting at the flat element offset.
func (a *Array) WriteInt32s(offset int64, values []int32) error {
	if a.dtype != Int32 {
		return fmt.Errorf("%s: dtype is %s, not int32", a.path, a.dtype)
	}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return a.writeAt(offset, int64(len(values)), buf)
}

// WriteFloat32s writes values starting at the flat element offset.
func (a *Array) WriteFloat32s(offset int64, values []float32) error {
	if a.dtype != Float32 {
		return fmt.Errorf("%s: dtype is %s, not float32", a.path, a.dtype)
	}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return a.writeAt(offset, int64(len(values)), buf)
}

func (a *Array) writeAt(offset, count int64, buf []byte) error {
	if count == 0 {
		return nil
	}
	if offset < 0 || offset+count > a.elems {
		return fmt.Errorf("%s: write of %d elements at %d exceeds %d", a.path, count, offset, a.elems)
	}
	_, err := a.file.WriteAt(buf, a.dataOffset+offset*int64(a.dtype.size()))
	return err
}

// Close flushes the array to disk and closes it.
func (a *Array) Close() error {
	if err := a.file.Sync(); err != nil {
		_ = a.file.Close()
		return fmt.Errorf("sync %s: %w", a.path, err)
	}
	return a.file.Close()
}
