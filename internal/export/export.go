// Package export converts rotary embedding tables and activation
// statistics into Arrow record batches and ships them to a Flight
// collector for offline inspection.
package export

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/granite-verify/internal/device"
	"github.com/23skdu/granite-verify/internal/rope"
)

// TableSchema returns the schema used for cos/sin table batches: one
// row per (batch, position) with fixed-size-list columns of headDim.
func TableSchema(headDim int) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "batch", Type: arrow.PrimitiveTypes.Int32},
		{Name: "position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "cos", Type: arrow.FixedSizeListOf(int32(headDim), arrow.PrimitiveTypes.Float32)},
		{Name: "sin", Type: arrow.FixedSizeListOf(int32(headDim), arrow.PrimitiveTypes.Float32)},
	}, nil)
}

// TableRecord flattens rotary tables into one Arrow record. The caller
// owns the returned record and must Release it.
func TableRecord(t *rope.Tables) (arrow.Record, error) {
	if t == nil || t.Batch == 0 {
		return nil, fmt.Errorf("export: empty tables")
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, TableSchema(t.Dim))
	defer b.Release()

	batchB := b.Field(0).(*array.Int32Builder)
	posB := b.Field(1).(*array.Int32Builder)
	cosB := b.Field(2).(*array.FixedSizeListBuilder)
	cosV := cosB.ValueBuilder().(*array.Float32Builder)
	sinB := b.Field(3).(*array.FixedSizeListBuilder)
	sinV := sinB.ValueBuilder().(*array.Float32Builder)

	for batch := 0; batch < t.Batch; batch++ {
		for pos := 0; pos < t.SeqLen; pos++ {
			batchB.Append(int32(batch))
			posB.Append(int32(pos))
			cos, sin := t.RowF32(batch, pos)
			cosB.Append(true)
			cosV.AppendValues(cos, nil)
			sinB.Append(true)
			sinV.AppendValues(sin, nil)
		}
	}

	return b.NewRecord(), nil
}

// StatsSchema returns the schema for per-tensor activation summaries.
func StatsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "tensor", Type: arrow.BinaryTypes.String},
		{Name: "max", Type: arrow.PrimitiveTypes.Float32},
		{Name: "min", Type: arrow.PrimitiveTypes.Float32},
		{Name: "mean", Type: arrow.PrimitiveTypes.Float32},
		{Name: "rms", Type: arrow.PrimitiveTypes.Float32},
		{Name: "nans", Type: arrow.PrimitiveTypes.Int32},
		{Name: "infs", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
}

// StatsRecord builds one record from named activation summaries.
func StatsRecord(names []string, stats []device.ActivationStats) (arrow.Record, error) {
	if len(names) != len(stats) {
		return nil, fmt.Errorf("export: %d names for %d stats", len(names), len(stats))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("export: no stats")
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, StatsSchema())
	defer b.Release()

	for i, s := range stats {
		b.Field(0).(*array.StringBuilder).Append(names[i])
		b.Field(1).(*array.Float32Builder).Append(s.Max)
		b.Field(2).(*array.Float32Builder).Append(s.Min)
		b.Field(3).(*array.Float32Builder).Append(s.Mean)
		b.Field(4).(*array.Float32Builder).Append(s.RMS)
		b.Field(5).(*array.Int32Builder).Append(int32(s.NaNs))
		b.Field(6).(*array.Int32Builder).Append(int32(s.Infs))
	}

	return b.NewRecord(), nil
}
