package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jacksonlee411/recordhub/pkg/httperr"
	"github.com/jacksonlee411/recordhub/pkg/uuidv7"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type Option func(*FileExporter)

func WithExportDirectory(dir string) Option {
	return func(e *FileExporter) {
		if strings.TrimSpace(dir) != "" {
			e.dir = filepath.Clean(dir)
		}
	}
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(e *FileExporter) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// FileExporter writes export files into one directory, named by export id.
type FileExporter struct {
	dir   string
	newID func() (string, error)
}

func NewFileExporter(opts ...Option) (*FileExporter, error) {
	e := &FileExporter{
		dir:   filepath.Join(os.TempDir(), "recordhub-exports"),
		newID: uuidv7.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare export directory: %w", err)
	}
	return e, nil
}

func (e *FileExporter) Dir() string { return e.dir }

func (e *FileExporter) Path(id string, format string) string {
	return filepath.Join(e.dir, id+"."+format)
}

func (e *FileExporter) Export(ctx context.Context, entityType string, format string, columns []string, rows []map[string]any) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		return "", httperr.NewBadRequest(fmt.Sprintf("unsupported export format %q", format))
	}
	if len(columns) == 0 {
		return "", httperr.NewBadRequest("export requires at least one attribute")
	}
	id, err := e.newID()
	if err != nil {
		return "", fmt.Errorf("generate export id: %w", err)
	}
	path := e.Path(id, format)

	switch format {
	case FormatXLSX:
		err = writeXLSX(ctx, path, entityType, columns, rows)
	default:
		err = writeCSV(ctx, path, columns, rows)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return id, nil
}

func writeCSV(ctx context.Context, path string, columns []string, rows []map[string]any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	buffered := bufio.NewWriter(file)
	writer := csv.NewWriter(buffered)

	if err := writer.Write(columns); err != nil {
		_ = file.Close()
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			_ = file.Close()
			return err
		}
		for i, col := range columns {
			record[i] = cellString(row[col])
		}
		if err := writer.Write(record); err != nil {
			_ = file.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return err
	}
	if err := buffered.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func writeXLSX(ctx context.Context, path string, entityType string, columns []string, rows []map[string]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if name := sheetName(entityType); name != "" && name != sheet {
		if err := f.SetSheetName(sheet, name); err != nil {
			return err
		}
		sheet = name
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for r, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := make([]any, len(columns))
		for i, col := range columns {
			cells[i] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// sheetName trims entityType to the 31 characters a worksheet name allows.
func sheetName(entityType string) string {
	entityType = strings.TrimSpace(entityType)
	if len(entityType) > 31 {
		entityType = entityType[:31]
	}
	return entityType
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64, int32:
		return t
	default:
		return cellString(v)
	}
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
