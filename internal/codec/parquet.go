package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// indexColumn is the pandas row-index column name, kept for interop with
// dataframe tooling.
const indexColumn = "__index_level_0__"

// columnOrderKey holds the submitted column order in the file key/value
// metadata. Parquet itself stores columns in sorted name order.
const columnOrderKey = "column_order"

// EncodeParquet renders the frame as a parquet file with one double column
// per label plus the string row-index column. The submitted column order is
// recorded in the file metadata so decoding restores it.
func EncodeParquet(f Frame) ([]byte, error) {
	group := parquet.Group{indexColumn: parquet.String()}
	for _, col := range f.Columns {
		if col == indexColumn {
			return nil, fmt.Errorf("column name %q is reserved", indexColumn)
		}
		group[col] = parquet.Leaf(parquet.DoubleType)
	}
	schema := parquet.NewSchema("dataframe", group)

	rows := make([]map[string]any, len(f.Index))
	for r, label := range f.Index {
		row := make(map[string]any, len(f.Columns)+1)
		row[indexColumn] = label
		for c, col := range f.Columns {
			row[col] = f.Values[r][c]
		}
		rows[r] = row
	}

	order, err := json.Marshal(f.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode column order: %w", err)
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, schema, parquet.KeyValueMetadata(columnOrderKey, string(order)))
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet parses a parquet dataframe back into a frame. Column order
// comes from the file metadata when present; files written elsewhere fall
// back to numeric order when every label is an integer, otherwise
// lexicographic.
func DecodeParquet(data []byte) (Frame, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Frame{}, fmt.Errorf("parse parquet: %w", err)
	}
	fields := file.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
	}

	var columns []string
	for _, name := range names {
		if name != indexColumn {
			columns = append(columns, name)
		}
	}
	if order, ok := storedOrder(file, columns); ok {
		columns = order
	} else {
		sortColumns(columns)
	}
	position := make(map[string]int, len(columns))
	for i, col := range columns {
		position[col] = i
	}

	frame := Frame{Columns: columns}
	buf := make([]parquet.Row, 64)
	for _, rowGroup := range file.RowGroups() {
		rows := rowGroup.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, pqRow := range buf[:n] {
				label := ""
				values := make([]float64, len(columns))
				for _, value := range pqRow {
					name := names[value.Column()]
					if name == indexColumn {
						label = value.String()
						continue
					}
					values[position[name]] = value.Double()
				}
				frame.Index = append(frame.Index, label)
				frame.Values = append(frame.Values, values)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rows.Close()
				return Frame{}, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		if err := rows.Close(); err != nil {
			return Frame{}, fmt.Errorf("close parquet rows: %w", err)
		}
	}
	return frame, nil
}

// storedOrder reads the column order recorded at encode time, accepting it
// only when it is a permutation of the columns actually present.
func storedOrder(file *parquet.File, columns []string) ([]string, bool) {
	raw, ok := file.Lookup(columnOrderKey)
	if !ok {
		return nil, false
	}
	var order []string
	if err := json.Unmarshal([]byte(raw), &order); err != nil || len(order) != len(columns) {
		return nil, false
	}
	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col] = true
	}
	for _, col := range order {
		if !present[col] {
			return nil, false
		}
		delete(present, col)
	}
	return order, true
}

// sortColumns orders labels numerically when they all parse as integers,
// falling back to lexicographic order.
func sortColumns(columns []string) {
	numeric := make(map[string]int, len(columns))
	for _, col := range columns {
		n, err := strconv.Atoi(col)
		if err != nil {
			sort.Strings(columns)
			return
		}
		numeric[col] = n
	}
	sort.Slice(columns, func(i, j int) bool { return numeric[columns[i]] < numeric[columns[j]] })
}
