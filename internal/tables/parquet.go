package tables

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ParquetProvider reads a flat Parquet file as a single table. Leaf column
// paths are joined with "." to form column names; every value is rendered as
// a string.
type ParquetProvider struct{}

// ConstituentRecord is the Parquet schema written by WriteConstituents.
type ConstituentRecord struct {
	Symbol string `parquet:"Symbol"`
	Name   string `parquet:"Name,optional"`
}

// Tables implements Provider.
func (ParquetProvider) Tables(_ context.Context, rawURL string) ([]Table, error) {
	path, err := localPath(rawURL)
	if err != nil {
		return nil, err
	}
	t, err := readParquetTable(path)
	if err != nil {
		return nil, fmt.Errorf("reading parquet %s: %w", path, err)
	}
	t.Name = filepath.Base(path)
	return []Table{t}, nil
}

func readParquetTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Table{}, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return Table{}, err
	}

	var t Table
	for _, col := range pf.Schema().Columns() {
		t.Columns = append(t.Columns, strings.Join(col, "."))
	}

	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]string, len(t.Columns))
				for _, v := range row {
					if c := v.Column(); c >= 0 && c < len(cells) && cells[c] == "" {
						cells[c] = valueString(v)
					}
				}
				t.Rows = append(t.Rows, cells)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return Table{}, err
			}
		}
		rows.Close()
	}
	return t, nil
}

func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return fmt.Sprint(v)
	}
}

// WriteConstituents writes symbols to a Parquet file with a "Symbol" column,
// readable back through ParquetProvider.
func WriteConstituents(path string, symbols []string) error {
	records := make([]ConstituentRecord, len(symbols))
	for i, s := range symbols {
		records[i] = ConstituentRecord{Symbol: s}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", path, err)
	}
	return parquet.WriteFile(path, records)
}
