// internal/output/excel.go
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	pagesSheet = "Pages"
	mediaSheet = "Media"
)

var excelPageHeader = []interface{}{
	"ID", "URL", "Final URL", "Title", "Status", "Text Length", "Scraped At",
	"Media Stored", "Media Size", "Summary", "Fields", "Error",
}

var excelMediaHeader = []interface{}{
	"Page ID", "Type", "Original URL", "Local Path", "Size", "Content Type",
	"Width", "Height", "Platform", "Platform ID",
}

// ExcelSaver keeps a workbook with a Pages sheet and a Media sheet and
// rewrites it on every Save.
type ExcelSaver struct {
	mu      sync.Mutex
	path    string
	file    *excelize.File
	nextRow map[string]int
}

// NewExcelSaver opens the workbook at path or creates a new one.
func NewExcelSaver(path string) (*ExcelSaver, error) {
	if path == "" {
		return nil, fmt.Errorf("Excel output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s := &ExcelSaver{path: path, nextRow: make(map[string]int)}

	file, err := excelize.OpenFile(path)
	switch {
	case err == nil:
		s.file = file
		for _, sheet := range []string{pagesSheet, mediaSheet} {
			rows, err := file.GetRows(sheet)
			if err != nil {
				file.Close()
				return nil, fmt.Errorf("workbook %s has no %s sheet: %w", path, sheet, err)
			}
			s.nextRow[sheet] = len(rows) + 1
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := s.newWorkbook(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return s, nil
}

func (s *ExcelSaver) newWorkbook() error {
	file := excelize.NewFile()
	if err := file.SetSheetName(file.GetSheetName(0), pagesSheet); err != nil {
		return err
	}
	if _, err := file.NewSheet(mediaSheet); err != nil {
		return err
	}

	style, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for sheet, header := range map[string][]interface{}{pagesSheet: excelPageHeader, mediaSheet: excelMediaHeader} {
		if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := file.SetCellStyle(sheet, "A1", last, style); err != nil {
			return err
		}
		if err := file.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return err
		}
		s.nextRow[sheet] = 2
	}
	s.file = file
	return nil
}

// Save appends rows and writes the workbook.
func (s *ExcelSaver) Save(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("Excel saver is closed")
	}

	for _, r := range records {
		fields := ""
		if len(r.Fields) > 0 {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("failed to encode fields of %s: %w", r.URL, err)
			}
			fields = string(b)
		}
		row := []interface{}{
			r.ID, r.URL, r.FinalURL, r.Title, r.StatusCode, r.TextLength,
			r.ScrapedAt.Format(time.RFC3339), r.MediaStats.Stored, r.StoredBytes(),
			r.Summary, fields, r.Error,
		}
		if err := s.appendRow(pagesSheet, row); err != nil {
			return err
		}

		for _, d := range r.Media {
			var width, height interface{}
			if d.Dimensions != nil {
				width, height = d.Dimensions.Width, d.Dimensions.Height
			}
			mediaRow := []interface{}{
				r.ID, string(d.Category), d.OriginalURL, d.LocalPath, d.SizeBytes, d.ContentType,
				width, height, d.Platform, d.PlatformID,
			}
			if err := s.appendRow(mediaSheet, mediaRow); err != nil {
				return err
			}
		}
	}

	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (s *ExcelSaver) appendRow(sheet string, row []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, s.nextRow[sheet])
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write %s row: %w", sheet, err)
	}
	s.nextRow[sheet]++
	return nil
}

// Close releases the workbook.
func (s *ExcelSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
