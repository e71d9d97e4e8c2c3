package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mindroom/matty/internal/domain"
)

// Export formats supported by WriteExport.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var exportHeader = []string{"event_id", "room_id", "sender", "timestamp", "body", "thread_root_id", "reply_to_id"}

// WriteExport writes messages to w in the given format.
func WriteExport(w io.Writer, format string, msgs []domain.Message) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, msgs)
	case FormatCSV:
		return writeCSV(w, msgs)
	case FormatXLSX:
		return writeXLSX(w, msgs)
	default:
		return fmt.Errorf("unknown export format %q (want json, csv, or xlsx)", format)
	}
}

func writeJSON(w io.Writer, msgs []domain.Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(msgs)
}

func writeCSV(w io.Writer, msgs []domain.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, m := range msgs {
		record := []string{
			m.EventID, m.RoomID, m.Sender,
			m.Timestamp.UTC().Format(time.RFC3339),
			m.Body, m.ThreadRootID, m.ReplyToID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, msgs []domain.Message) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Messages"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for col, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}
	for row, m := range msgs {
		values := []any{
			m.EventID, m.RoomID, m.Sender,
			m.Timestamp.UTC().Format(time.RFC3339),
			m.Body, m.ThreadRootID, m.ReplyToID,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}
