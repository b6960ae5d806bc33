// Package export renders result pages as spreadsheets.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/obsquery/internal/domain"
)

var baseHeaders = []string{"id", "title", "created_at", "updated_at"}

// WriteXLSX writes entities as one sheet named after the entity type. The
// header row is the base columns followed by every field name seen, sorted.
func WriteXLSX(w io.Writer, t domain.EntityType, entities []domain.Entity) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := string(t)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	fields := fieldNames(entities)
	headers := append(append([]string(nil), baseHeaders...), fields...)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, e := range entities {
		row := []any{e.ID, e.Title, formatValue(e.CreatedAt), formatValue(e.UpdatedAt)}
		for _, name := range fields {
			row = append(row, formatValue(e.Fields[name]))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// FileName returns the download name for an export of t.
func FileName(t domain.EntityType, now time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", sanitizeFileComponent(strings.ToLower(string(t))), now.UTC().Format("20060102-150405"))
}

func fieldNames(entities []domain.Entity) []string {
	seen := make(map[string]struct{})
	for _, e := range entities {
		for name := range e.Fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sanitizeFileComponent(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "export"
	}
	return b.String()
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
