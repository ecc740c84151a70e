package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/pkg/errors"

	"github.com/mipt-srf/probe-station/pkg/analysis"
	"github.com/mipt-srf/probe-station/pkg/datafile"
)

// tableToArrow converts every column to a float64 arrow column.
func tableToArrow(t *datafile.Table, mem memory.Allocator) arrow.Table {
	names := t.Columns()
	fields := make([]arrow.Field, len(names))
	columns := make([]arrow.Column, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64}

		values, _ := t.Column(name)
		builder := array.NewFloat64Builder(mem)
		builder.AppendValues(values, nil)
		arr := builder.NewArray()
		builder.Release()

		chunked := arrow.NewChunked(fields[i].Type, []arrow.Array{arr})
		arr.Release()
		columns[i] = *arrow.NewColumn(fields[i], chunked)
		chunked.Release()
	}
	return array.NewTable(arrow.NewSchema(fields, nil), columns, int64(t.Rows()))
}

func summaryToArrow(s analysis.Summary, mem memory.Allocator) arrow.Table {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "Quantity", Type: arrow.BinaryTypes.String},
		{Name: "Value", Type: arrow.PrimitiveTypes.Float64},
		{Name: "Unit", Type: arrow.BinaryTypes.String},
	}, nil)

	names := array.NewStringBuilder(mem)
	defer names.Release()
	values := array.NewFloat64Builder(mem)
	defer values.Release()
	units := array.NewStringBuilder(mem)
	defer units.Release()
	for _, q := range s {
		names.Append(q.Name)
		values.Append(q.Value)
		units.Append(q.Unit)
	}

	arrays := []arrow.Array{names.NewArray(), values.NewArray(), units.NewArray()}
	columns := make([]arrow.Column, len(arrays))
	for i, arr := range arrays {
		chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
		arr.Release()
		columns[i] = *arrow.NewColumn(schema.Field(i), chunked)
		chunked.Release()
	}
	return array.NewTable(schema, columns, int64(len(s)))
}

func writeArrow(path string, table arrow.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create parquet file")
	}
	defer file.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(table.Schema(), file, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, "create parquet writer")
	}
	if err := writer.WriteTable(table, max(table.NumRows(), 1)); err != nil {
		writer.Close()
		return errors.Wrap(err, "write table to parquet")
	}
	return errors.Wrap(writer.Close(), "close parquet writer")
}

// WriteParquet writes t to path as a snappy compressed parquet file.
func WriteParquet(path string, t *datafile.Table) error {
	table := tableToArrow(t, memory.NewGoAllocator())
	defer table.Release()
	return writeArrow(path, table)
}

// WriteParquetDir writes every table of b and its summary into dir, one
// file each, and returns the written paths.
func WriteParquetDir(dir string, b Bundle) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create export directory")
	}

	var paths []string
	for _, nt := range b.Tables {
		path := filepath.Join(dir, strings.ToLower(nt.Name)+".parquet")
		if err := WriteParquet(path, nt.Table); err != nil {
			return paths, errors.Wrapf(err, "table %s", nt.Name)
		}
		paths = append(paths, path)
	}

	summary := summaryToArrow(b.Summary, memory.NewGoAllocator())
	defer summary.Release()
	path := filepath.Join(dir, strings.ToLower(SummarySheet)+".parquet")
	if err := writeArrow(path, summary); err != nil {
		return paths, errors.Wrap(err, "summary")
	}
	return append(paths, path), nil
}

// ReadParquet loads a parquet file of float64 columns back into a table.
func ReadParquet(ctx context.Context, path string) (*datafile.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open parquet file")
	}
	defer file.Close()

	mem := memory.NewGoAllocator()
	table, err := pqarrow.ReadTable(ctx, file, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, "read parquet data")
	}
	defer table.Release()

	names := make([]string, 0, table.NumCols())
	values := make([][]float64, 0, table.NumCols())
	for i := 0; i < int(table.NumCols()); i++ {
		col := table.Column(i)
		if col.DataType().ID() != arrow.FLOAT64 {
			return nil, errors.Errorf("column %q is %s, want float64", col.Name(), col.DataType())
		}
		data := make([]float64, 0, table.NumRows())
		for _, chunk := range col.Data().Chunks() {
			data = append(data, chunk.(*array.Float64).Float64Values()...)
		}
		names = append(names, col.Name())
		values = append(values, data)
	}
	return datafile.FromColumns(names, values...)
}
