package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"vatchain/core/sequencer"
)

type parquetReceipt struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Op         string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller     string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Time       string `parquet:"name=time, type=BYTE_ARRAY, convertedtype=UTF8"`
	Result     string `parquet:"name=result, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventCount int32  `parquet:"name=event_count, type=INT32"`
	Events     string `parquet:"name=events, type=BYTE_ARRAY, convertedtype=UTF8"`
	Parent     string `parquet:"name=parent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes receipts numbered from through to (zero meaning the
// head) to a Snappy-compressed parquet file at path and returns the row count.
func ExportParquet(path string, log *sequencer.ReceiptLog, from, to uint64) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetReceipt), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	err = log.Range(from, to, func(r *sequencer.Receipt) error {
		events, err := json.Marshal(r.Events)
		if err != nil {
			return err
		}
		row := &parquetReceipt{
			Sequence:   int64(r.Sequence),
			ID:         r.ID.String(),
			Op:         r.Op,
			Caller:     r.Caller.String(),
			Time:       r.Time.UTC().Format(time.RFC3339Nano),
			Result:     r.Result,
			EventCount: int32(len(r.Events)),
			Events:     string(events),
			Parent:     r.Parent,
			Digest:     r.Digest,
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("export: write row %d: %w", r.Sequence, err)
		}
		rows++
		return nil
	})
	if err != nil {
		_ = pw.WriteStop()
		file.Close()
		return 0, err
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("export: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	return rows, nil
}
