package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"ensemblestore/pkg/domain"
)

// DecodeNumpy parses a .npy payload into a flattened matrix. Any numeric
// dtype npyio can read into float64 is accepted; the shape is taken from the
// header.
func DecodeNumpy(data []byte) (domain.FloatMatrix, error) {
	r, err := npyio.NewReader(bytes.NewReader(data))
	if err != nil {
		return domain.FloatMatrix{}, fmt.Errorf("parse npy header: %w", err)
	}
	shape := append([]int(nil), r.Header.Descr.Shape...)
	if r.Header.Descr.Fortran {
		return domain.FloatMatrix{}, fmt.Errorf("fortran-order npy not supported")
	}
	var values []float64
	if err := r.Read(&values); err != nil {
		return domain.FloatMatrix{}, fmt.Errorf("read npy data: %w", err)
	}
	want := 1
	for _, dim := range shape {
		want *= dim
	}
	if want != len(values) {
		return domain.FloatMatrix{}, fmt.Errorf("npy shape %v implies %d values, got %d", shape, want, len(values))
	}
	return domain.FloatMatrix{Shape: shape, Values: values}, nil
}

// EncodeNumpy renders the matrix as a .npy payload. Ranks zero through two
// go through npyio's writer; npyio derives the shape by reflection over the
// Go value, so higher ranks emit the float64 header directly from Shape.
func EncodeNumpy(m domain.FloatMatrix) ([]byte, error) {
	var buf bytes.Buffer
	switch m.Rank() {
	case 0, 1:
		if err := npyio.Write(&buf, m.Values); err != nil {
			return nil, fmt.Errorf("write npy: %w", err)
		}
	case 2:
		dense := mat.NewDense(m.Shape[0], m.Shape[1], append([]float64(nil), m.Values...))
		if err := npyio.Write(&buf, dense); err != nil {
			return nil, fmt.Errorf("write npy: %w", err)
		}
	default:
		if err := writeNumpyRaw(&buf, m.Shape, m.Values); err != nil {
			return nil, fmt.Errorf("write npy: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// writeNumpyRaw emits a version 1.0 .npy stream for a C-order float64 array
// of the given shape. The header dict is space-padded so the data section
// starts on a 64-byte boundary, per the format description.
func writeNumpyRaw(w io.Writer, shape []int, values []float64) error {
	dims := make([]string, len(shape))
	for i, dim := range shape {
		dims[i] = strconv.Itoa(dim)
	}
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%s), }", strings.Join(dims, ", "))
	padded := len(header) + 1
	if rem := (10 + padded) % 64; rem != 0 {
		padded += 64 - rem
	}
	raw := bytes.Repeat([]byte{' '}, padded)
	copy(raw, header)
	raw[padded-1] = '\n'

	if _, err := w.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(padded)); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, values)
}
