package treasury

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// journalRow is the columnar shape written to the periodic audit export.
type journalRow struct {
	Seq        uint64 `parquet:"name=seq, type=INT64"`
	ProviderID string `parquet:"name=provider_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Op         string `parquet:"name=op, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount     uint64 `parquet:"name=amount, type=INT64"`
	Height     uint64 `parquet:"name=height, type=INT64"`
	Available  uint64 `parquet:"name=available, type=INT64"`
	Escrowed   uint64 `parquet:"name=escrowed, type=INT64"`
	Staked     uint64 `parquet:"name=staked, type=INT64"`
}

// ExportJournal writes the full ledger journal to a Snappy-compressed
// Parquet file at path for offline compliance and reconciliation tooling.
func (l *Ledger) ExportJournal(path string) error {
	entries := l.Journal()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("treasury: create journal export: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(journalRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("treasury: journal export schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, e := range entries {
		row := &journalRow{
			Seq:        e.Seq,
			ProviderID: e.ProviderID.String(),
			Op:         string(e.Op),
			Amount:     e.Amount,
			Height:     uint64(e.Height),
			Available:  e.Available,
			Escrowed:   e.Escrowed,
			Staked:     e.Staked,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("treasury: journal export write seq=%s: %w", strconv.FormatUint(row.Seq, 10), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("treasury: journal export flush: %w", err)
	}
	return file.Close()
}
