package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
)

// EncodeCSV renders the frame in dataframe layout: an unnamed index column
// followed by one column per label. NaN cells render empty.
func EncodeCSV(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{""}, f.Columns...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for r, label := range f.Index {
		row := make([]string, 0, len(f.Columns)+1)
		row = append(row, label)
		for _, v := range f.Values[r] {
			if math.IsNaN(v) {
				row = append(row, "")
			} else {
				row = append(row, formatFloat(v))
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// DecodeCSV parses a dataframe-layout CSV back into a frame. The first
// header cell (the index column name) is ignored; empty cells become NaN.
func DecodeCSV(data []byte) (Frame, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return Frame{}, fmt.Errorf("empty csv")
	}
	frame := Frame{Columns: append([]string(nil), records[0][1:]...)}
	for _, record := range records[1:] {
		if len(record) != len(frame.Columns)+1 {
			return Frame{}, fmt.Errorf("csv row has %d cells, want %d", len(record), len(frame.Columns)+1)
		}
		row := make([]float64, len(frame.Columns))
		for i, cell := range record[1:] {
			if cell == "" {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return Frame{}, fmt.Errorf("csv cell %q: %w", cell, err)
			}
			row[i] = v
		}
		frame.Index = append(frame.Index, record[0])
		frame.Values = append(frame.Values, row)
	}
	return frame, nil
}
